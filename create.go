package tokenmanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gitlab.com/scpcorp/spl-token-manager/common"
	"gitlab.com/scpcorp/spl-token-manager/solana"
)

// metadataJSON is the off-chain document referenced by the metadata account.
type metadataJSON struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

func buildMetadataJSON(name, symbol, description, imageURL string) ([]byte, error) {
	return json.MarshalIndent(metadataJSON{
		Name:        name,
		Symbol:      symbol,
		Description: description,
		Image:       imageURL,
	}, "", "    ")
}

type createForm struct {
	name        string
	symbol      string
	description string
	decimals    uint8
	rawSupply   uint64
	image       []byte
	contentType string
}

func parseCreateForm(req *CreateTokenRequest) (*createForm, error) {
	name := strings.TrimSpace(req.Name)
	symbol := strings.TrimSpace(req.Symbol)
	if len(name) > solana.MaxNameLength {
		return nil, ValidationError{Msg: fmt.Sprintf("Name must be at most %d bytes", solana.MaxNameLength)}
	}
	if len(symbol) > solana.MaxSymbolLength {
		return nil, ValidationError{Msg: fmt.Sprintf("Symbol must be at most %d bytes", solana.MaxSymbolLength)}
	}
	decimals, err := strconv.Atoi(strings.TrimSpace(req.Decimals))
	if err != nil || decimals < 0 || decimals > solana.MaxDecimals {
		return nil, ValidationError{Msg: fmt.Sprintf("Decimals must be an integer between 0 and %d", solana.MaxDecimals)}
	}
	rawSupply, err := common.ParseUIAmount(strings.TrimSpace(req.Supply), uint8(decimals))
	if err != nil {
		return nil, ValidationError{Msg: fmt.Sprintf("Invalid supply: %v", err)}
	}
	contentType := req.ImageContentType
	if contentType == "" {
		contentType = http.DetectContentType(req.Image)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, ValidationError{Msg: fmt.Sprintf("Image has unsupported content type %s", contentType)}
	}
	return &createForm{
		name:        name,
		symbol:      symbol,
		description: strings.TrimSpace(req.Description),
		decimals:    uint8(decimals),
		rawSupply:   rawSupply,
		image:       req.Image,
		contentType: contentType,
	}, nil
}

// blank reports whether any of fields is empty after trimming spaces.
func blank(fields ...string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return true
		}
	}
	return false
}

// uploaded tracks an upload made by the current flow.
type uploaded struct {
	ledgerID string
	upload   common.Upload
}

func (s *Server) CreateToken(ctx context.Context, req *CreateTokenRequest) (*CreateTokenResponse, error) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()

	if blank(req.Name, req.Symbol, req.Decimals, req.Supply, req.Description) || len(req.Image) == 0 {
		return nil, s.invalid("Fill the all of the fields")
	}
	form, err := parseCreateForm(req)
	if err != nil {
		var vErr ValidationError
		if errors.As(err, &vErr) {
			return nil, s.invalid(vErr.Msg)
		}
		return nil, s.fail("create token", err)
	}
	owner, err := s.wallet.PublicKey()
	if err != nil {
		return nil, s.fail("create token", err)
	}

	lid := uuid.NewString()
	log := s.log.WithFields(logrus.Fields{"flow": "CreateToken", "lid": lid})
	log.Info("CreateToken started")
	defer log.Info("CreateToken exited")

	var uploads []uploaded
	res, err := s.createToken(ctx, owner, form, &uploads)
	if err != nil {
		s.compensate(ctx, uploads)
		creation := common.CreationRecord{
			ID:     lid,
			Owner:  common.Address(owner),
			Name:   form.name,
			Symbol: form.symbol,
			Status: common.CreationFailed,
			Error:  err.Error(),
		}
		if res != nil {
			creation.Mint = res.Mint
			creation.ImageURL = res.ImageURL
			creation.MetadataURL = res.MetadataURL
		}
		if recErr := s.ledger.RecordCreation(context.WithoutCancel(ctx), creation); recErr != nil {
			log.WithError(recErr).Error("Failed to record failed creation")
		}
		return nil, s.fail("create token", err)
	}

	ids := make([]string, 0, len(uploads))
	for _, u := range uploads {
		ids = append(ids, u.ledgerID)
	}
	if err := s.ledger.MarkUploads(ctx, ids, common.UploadLinked); err != nil {
		log.WithError(err).Error("Failed to mark uploads linked")
	}
	if err := s.ledger.RecordCreation(ctx, common.CreationRecord{
		ID:          lid,
		Owner:       common.Address(owner),
		Mint:        res.Mint,
		Signature:   res.Signature,
		Name:        form.name,
		Symbol:      form.symbol,
		ImageURL:    res.ImageURL,
		MetadataURL: res.MetadataURL,
		Status:      common.CreationConfirmed,
	}); err != nil {
		log.WithError(err).Error("Failed to record creation")
	}

	s.feed.Successf("Created Token. Token address: %s", res.Mint)
	s.refreshAfterFlow(ctx, owner)
	return res, nil
}

// createToken uploads the image and metadata and submits the creation
// transaction. Every successful upload is appended to uploads, so the caller
// can compensate on failure. The partial response is returned with errors.
func (s *Server) createToken(ctx context.Context, owner solanago.PublicKey, form *createForm, uploads *[]uploaded) (*CreateTokenResponse, error) {
	res := &CreateTokenResponse{}

	image, err := s.upload(ctx, owner, form.image, form.contentType, uploads)
	if err != nil {
		return res, fmt.Errorf("upload image: %w", err)
	}
	res.ImageURL = image.URL
	s.feed.Infof("Image uploaded. imageUrl: %s", image.URL)

	metadata, err := buildMetadataJSON(form.name, form.symbol, form.description, image.URL)
	if err != nil {
		return res, fmt.Errorf("encode metadata: %w", err)
	}
	metadataUpload, err := s.upload(ctx, owner, metadata, "application/json", uploads)
	if err != nil {
		return res, fmt.Errorf("upload metadata: %w", err)
	}
	res.MetadataURL = metadataUpload.URL
	s.feed.Infof("metadataUrl: %s", metadataUpload.URL)

	mintKey, err := s.newMint()
	if err != nil {
		return res, fmt.Errorf("generate mint key: %w", err)
	}
	res.Mint = common.Address(mintKey.PublicKey())
	rent, err := s.chain.RentExemptMint(ctx)
	if err != nil {
		return res, err
	}
	instructions, err := solana.CreateTokenInstructions(solana.CreateTokenParams{
		Wallet:       owner,
		Mint:         mintKey.PublicKey(),
		RentLamports: rent,
		Decimals:     form.decimals,
		RawSupply:    form.rawSupply,
		Name:         form.name,
		Symbol:       form.symbol,
		MetadataURL:  metadataUpload.URL,
	})
	if err != nil {
		return res, fmt.Errorf("build transaction: %w", err)
	}
	sig, err := s.wallet.SendTransaction(ctx, instructions, mintKey)
	if err != nil {
		return res, fmt.Errorf("send transaction: %w", err)
	}
	res.Signature = sig.String()
	return res, nil
}

func (s *Server) upload(ctx context.Context, owner solanago.PublicKey, data []byte, contentType string, uploads *[]uploaded) (common.Upload, error) {
	upload, err := s.storage.Upload(ctx, data, contentType)
	if err != nil {
		return common.Upload{}, err
	}
	rec := common.UploadRecord{
		ID:          uuid.NewString(),
		Owner:       common.Address(owner),
		ContentID:   upload.ID,
		URL:         upload.URL,
		ContentType: contentType,
		Size:        len(data),
		Status:      common.UploadPending,
		CreatedAt:   s.now().UTC(),
	}
	*uploads = append(*uploads, uploaded{ledgerID: rec.ID, upload: upload})
	if err := s.ledger.RecordUpload(ctx, rec); err != nil {
		return upload, fmt.Errorf("record upload %s: %w", upload.ID, err)
	}
	return upload, nil
}

// compensate removes uploads of a failed flow when storage allows it and
// marks the rest orphaned for the sweeper.
func (s *Server) compensate(ctx context.Context, uploads []uploaded) {
	if len(uploads) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settings.CleanupTimeout)
	defer cancel()

	var removed, orphaned []string
	remover, canRemove := s.storage.(Remover)
	for _, u := range uploads {
		if canRemove {
			err := remover.Remove(ctx, u.upload.ID)
			if err == nil {
				removed = append(removed, u.ledgerID)
				continue
			}
			s.log.WithError(err).WithField("upload", u.upload.ID).Warn("Failed to remove upload")
		}
		orphaned = append(orphaned, u.ledgerID)
	}
	if err := s.ledger.MarkUploads(ctx, removed, common.UploadRemoved); err != nil {
		s.log.WithError(err).Error("Failed to mark uploads removed")
	}
	if err := s.ledger.MarkUploads(ctx, orphaned, common.UploadOrphaned); err != nil {
		s.log.WithError(err).Error("Failed to mark uploads orphaned")
	}
	if len(orphaned) != 0 {
		s.log.WithField("count", len(orphaned)).Warn("Uploads left orphaned")
	}
}
