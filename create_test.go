package tokenmanager

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"gitlab.com/scpcorp/spl-token-manager/common"
	"gitlab.com/scpcorp/spl-token-manager/notify"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func validCreateRequest() *CreateTokenRequest {
	return &CreateTokenRequest{
		Name:        "Test Token",
		Symbol:      "TT",
		Decimals:    "2",
		Supply:      "1000.5",
		Description: "A token for tests",
		Image:       pngHeader,
	}
}

func borshString(s string) []byte {
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(s)))
	return append(out, s...)
}

func instructionData(t *testing.T, instruction solanago.Instruction) []byte {
	data, err := instruction.Data()
	require.NoError(t, err)
	return data
}

func TestCreateTokenEmptyFields(t *testing.T) {
	storage := newFakeStorage()
	env := newTestEnv(t, storage)

	_, err := env.server.CreateToken(context.Background(), &CreateTokenRequest{})
	requireValidation(t, err)
	require.Empty(t, storage.uploads)
	require.Empty(t, env.wallet.sent)

	n := env.lastNotification(t)
	require.Equal(t, notify.Warning, n.Status)
	require.Equal(t, "Fill the all of the fields", n.Message)
	require.Equal(t, "Notification", n.Title)
}

func TestCreateTokenMissingSingleField(t *testing.T) {
	cases := []func(r *CreateTokenRequest){
		func(r *CreateTokenRequest) { r.Name = "" },
		func(r *CreateTokenRequest) { r.Symbol = "" },
		func(r *CreateTokenRequest) { r.Decimals = "" },
		func(r *CreateTokenRequest) { r.Supply = "" },
		func(r *CreateTokenRequest) { r.Description = "" },
		func(r *CreateTokenRequest) { r.Image = nil },
		func(r *CreateTokenRequest) { r.Name = "   " },
		func(r *CreateTokenRequest) { r.Symbol = "  " },
		func(r *CreateTokenRequest) { r.Supply = " " },
		func(r *CreateTokenRequest) { r.Description = "\t\n" },
	}
	for _, mutate := range cases {
		storage := newFakeStorage()
		env := newTestEnv(t, storage)
		req := validCreateRequest()
		mutate(req)
		_, err := env.server.CreateToken(context.Background(), req)
		requireValidation(t, err)
		require.Equal(t, "Fill the all of the fields", env.lastNotification(t).Message)
		require.Empty(t, storage.uploads)
		require.Empty(t, env.wallet.sent)
	}
}

func TestCreateTokenInvalidFields(t *testing.T) {
	cases := []func(r *CreateTokenRequest){
		func(r *CreateTokenRequest) { r.Decimals = "10" },
		func(r *CreateTokenRequest) { r.Decimals = "-1" },
		func(r *CreateTokenRequest) { r.Decimals = "two" },
		func(r *CreateTokenRequest) { r.Supply = "0" },
		func(r *CreateTokenRequest) { r.Supply = "1.001" },
		func(r *CreateTokenRequest) { r.Supply = "184467440737095516.16" },
		func(r *CreateTokenRequest) { r.Name = "a name that is much longer than thirty two bytes" },
		func(r *CreateTokenRequest) { r.Symbol = "TOOLONGSYMBOL" },
		func(r *CreateTokenRequest) { r.Image = []byte("plain text, not an image") },
	}
	for _, mutate := range cases {
		storage := newFakeStorage()
		env := newTestEnv(t, storage)
		req := validCreateRequest()
		mutate(req)
		_, err := env.server.CreateToken(context.Background(), req)
		requireValidation(t, err)
		require.Empty(t, storage.uploads)
		require.Empty(t, env.wallet.sent)
		require.Equal(t, notify.Warning, env.lastNotification(t).Status)
	}
}

func TestCreateTokenZeroDecimalsIsPresent(t *testing.T) {
	storage := newFakeStorage()
	env := newTestEnv(t, storage)
	req := validCreateRequest()
	req.Decimals = "0"
	req.Supply = "500"

	_, err := env.server.CreateToken(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, env.wallet.sent, 1)
	mintTo := instructionData(t, env.wallet.sent[0].instructions[3])
	require.Equal(t, uint64(500), binary.LittleEndian.Uint64(mintTo[1:9]))
}

func TestCreateTokenNotConnected(t *testing.T) {
	storage := newFakeStorage()
	env := newTestEnv(t, storage)
	env.wallet.connected = false

	_, err := env.server.CreateToken(context.Background(), validCreateRequest())
	require.Error(t, err)
	var apiErr Error
	require.ErrorAs(t, err, &apiErr)
	require.Empty(t, storage.uploads)
	require.Equal(t, notify.Error, env.lastNotification(t).Status)
}

func TestCreateToken(t *testing.T) {
	storage := newFakeStorage()
	env := newTestEnv(t, storage)
	ctx := context.Background()

	res, err := env.server.CreateToken(ctx, validCreateRequest())
	require.NoError(t, err)

	// Image first, metadata second.
	require.Equal(t, []string{"item-1", "item-2"}, storage.uploads)
	image := storage.objects["item-1"]
	require.Equal(t, pngHeader, image.data)
	require.Equal(t, "image/png", image.contentType)
	imageURL := "https://arweave.test/item-1"
	metadataURL := "https://arweave.test/item-2"
	require.Equal(t, imageURL, res.ImageURL)
	require.Equal(t, metadataURL, res.MetadataURL)

	// The metadata document holds exactly the form fields and the image URL.
	metadata := storage.objects["item-2"]
	require.Equal(t, "application/json", metadata.contentType)
	var doc map[string]string
	require.NoError(t, json.Unmarshal(metadata.data, &doc))
	require.Equal(t, map[string]string{
		"name":        "Test Token",
		"symbol":      "TT",
		"description": "A token for tests",
		"image":       imageURL,
	}, doc)
	require.Contains(t, string(metadata.data), "\n    \"name\": \"Test Token\"")

	// One transaction of five instructions, signed by the fresh mint as well.
	require.Len(t, env.wallet.sent, 1)
	tx := env.wallet.sent[0]
	require.Len(t, tx.instructions, 5)
	require.Equal(t, []solanago.PrivateKey{env.mintKey}, tx.signers)
	require.Equal(t, common.Address(env.mintKey.PublicKey()), res.Mint)
	require.Equal(t, solanago.SystemProgramID, tx.instructions[0].ProgramID())
	require.Equal(t, solanago.TokenProgramID, tx.instructions[1].ProgramID())
	require.Equal(t, solanago.SPLAssociatedTokenAccountProgramID, tx.instructions[2].ProgramID())
	require.Equal(t, solanago.TokenProgramID, tx.instructions[3].ProgramID())
	require.Equal(t, solanago.TokenMetadataProgramID, tx.instructions[4].ProgramID())

	mintTo := instructionData(t, tx.instructions[3])
	require.Equal(t, uint64(100050), binary.LittleEndian.Uint64(mintTo[1:9]))

	metadataData := instructionData(t, tx.instructions[4])
	require.True(t, bytes.Contains(metadataData, borshString(metadataURL)))
	require.False(t, bytes.Contains(metadataData, borshString(imageURL)))

	// Notifications: image URL, metadata URL, success.
	all := env.feed.Since(0)
	require.Len(t, all, 3)
	require.Equal(t, "Image uploaded. imageUrl: "+imageURL, all[0].Message)
	require.Equal(t, "metadataUrl: "+metadataURL, all[1].Message)
	require.Equal(t, notify.Success, all[2].Status)
	require.Equal(t, "Created Token. Token address: "+env.mintKey.PublicKey().String(), all[2].Message)

	// Ledger links both uploads and records the creation.
	orphans, err := env.ledger.Orphans(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, orphans)
	creations, err := env.ledger.Creations(ctx, common.Address(env.owner))
	require.NoError(t, err)
	require.Len(t, creations, 1)
	require.Equal(t, common.CreationConfirmed, creations[0].Status)
	require.Equal(t, res.Mint, creations[0].Mint)
	require.Equal(t, metadataURL, creations[0].MetadataURL)

	history, err := env.server.History(ctx, &HistoryRequest{})
	require.NoError(t, err)
	require.Equal(t, creations, history.Creations)
}

func TestCreateTokenRemovesUploadsOnFailure(t *testing.T) {
	storage := &removableStorage{fakeStorage: newFakeStorage()}
	env := newTestEnv(t, storage)
	sendErr := errors.New("blockhash not found")
	env.wallet.sendErr = sendErr
	ctx := context.Background()

	_, err := env.server.CreateToken(ctx, validCreateRequest())
	require.ErrorIs(t, err, sendErr)
	var apiErr Error
	require.ErrorAs(t, err, &apiErr)

	require.ElementsMatch(t, []string{"item-1", "item-2"}, storage.removed)
	require.Empty(t, storage.objects)
	orphans, err := env.ledger.Orphans(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, orphans)

	n := env.lastNotification(t)
	require.Equal(t, notify.Error, n.Status)
	require.Contains(t, n.Message, "blockhash not found")

	creations, err := env.ledger.Creations(ctx, common.Address(env.owner))
	require.NoError(t, err)
	require.Len(t, creations, 1)
	require.Equal(t, common.CreationFailed, creations[0].Status)
}

func TestCreateTokenOrphansUploadsOnFailure(t *testing.T) {
	storage := newFakeStorage()
	env := newTestEnv(t, storage)
	env.wallet.sendErr = errors.New("insufficient funds for rent")
	ctx := context.Background()

	_, err := env.server.CreateToken(ctx, validCreateRequest())
	require.Error(t, err)

	orphans, err := env.ledger.Orphans(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orphans, 2)
	var contentIDs []string
	for _, o := range orphans {
		contentIDs = append(contentIDs, o.ContentID)
		require.Equal(t, common.Address(env.owner), o.Owner)
	}
	require.ElementsMatch(t, []string{"item-1", "item-2"}, contentIDs)
}

func TestCreateTokenMetadataUploadFailure(t *testing.T) {
	storage := &removableStorage{fakeStorage: newFakeStorage()}
	storage.failAfter = 1
	env := newTestEnv(t, storage)

	_, err := env.server.CreateToken(context.Background(), validCreateRequest())
	require.Error(t, err)
	require.Empty(t, env.wallet.sent)
	require.Equal(t, []string{"item-1"}, storage.removed)
}

func TestSweepOrphans(t *testing.T) {
	storage := &removableStorage{fakeStorage: newFakeStorage()}
	storage.removeErr = errors.New("temporarily unavailable")
	env := newTestEnv(t, storage)
	env.wallet.sendErr = errors.New("node is behind")
	ctx := context.Background()

	_, err := env.server.CreateToken(ctx, validCreateRequest())
	require.Error(t, err)
	orphans, err := env.ledger.Orphans(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orphans, 2)

	// Storage still failing: nothing changes.
	require.NoError(t, env.server.sweepOrphans(ctx, storage))
	orphans, err = env.ledger.Orphans(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orphans, 2)

	storage.removeErr = nil
	require.NoError(t, env.server.sweepOrphans(ctx, storage))
	require.ElementsMatch(t, []string{"item-1", "item-2"}, storage.removed)
	orphans, err = env.ledger.Orphans(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, orphans)
}

func TestBuildMetadataJSON(t *testing.T) {
	data, err := buildMetadataJSON("N", "S", "D", "https://x/img")
	require.NoError(t, err)
	require.Equal(t, "{\n    \"name\": \"N\",\n    \"symbol\": \"S\",\n    \"description\": \"D\",\n    \"image\": \"https://x/img\"\n}", string(data))
}
