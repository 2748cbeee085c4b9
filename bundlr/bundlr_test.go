package bundlr

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"
)

type fakeWallet struct {
	key solana.PrivateKey

	mu        sync.Mutex
	transfers []uint64
	to        []solana.PublicKey
}

func newFakeWallet(t *testing.T) *fakeWallet {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return &fakeWallet{key: key}
}

func (w *fakeWallet) PublicKey() (solana.PublicKey, error) {
	return w.key.PublicKey(), nil
}

func (w *fakeWallet) SignMessage(msg []byte) (solana.Signature, error) {
	return w.key.Sign(msg)
}

func (w *fakeWallet) Transfer(ctx context.Context, to solana.PublicKey, lamports uint64) (solana.Signature, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.transfers = append(w.transfers, lamports)
	w.to = append(w.to, to)
	var sig solana.Signature
	sig[0] = byte(len(w.transfers))
	return sig, nil
}

// parseDataItem is the inverse of MarshalBinary for items without target.
func parseDataItem(t *testing.T, raw []byte) (*DataItem, uint64) {
	require.Equal(t, uint16(signatureTypeEd25519), binary.LittleEndian.Uint16(raw[:2]))
	item := &DataItem{}
	pos := 2
	copy(item.Signature[:], raw[pos:pos+signatureLength])
	pos += signatureLength
	copy(item.Owner[:], raw[pos:pos+ownerLength])
	pos += ownerLength
	require.Equal(t, byte(0), raw[pos])
	pos++
	require.Equal(t, byte(1), raw[pos])
	pos++
	item.Anchor = raw[pos : pos+anchorLength]
	pos += anchorLength
	numTags := binary.LittleEndian.Uint64(raw[pos:])
	pos += 8
	tagsLen := int(binary.LittleEndian.Uint64(raw[pos:]))
	pos += 8
	item.Tags = decodeTags(t, raw[pos:pos+tagsLen])
	pos += tagsLen
	item.Data = raw[pos:]
	return item, numTags
}

func decodeTags(t *testing.T, raw []byte) []Tag {
	if len(raw) == 0 {
		return nil
	}
	readBytes := func() string {
		n, read := binary.Varint(raw)
		require.Positive(t, read)
		raw = raw[read:]
		s := string(raw[:n])
		raw = raw[n:]
		return s
	}
	count, read := binary.Varint(raw)
	require.Positive(t, read)
	raw = raw[read:]
	var tags []Tag
	for i := int64(0); i < count; i++ {
		name := readBytes()
		value := readBytes()
		tags = append(tags, Tag{Name: name, Value: value})
	}
	require.Equal(t, []byte{0}, raw)
	return tags
}

func TestDataItemRoundTrip(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(0, 512)
	wallet := newFakeWallet(t)
	for i := 0; i < 20; i++ {
		var data []byte
		f.Fuzz(&data)
		tags := []Tag{{Name: "Content-Type", Value: "application/json"}}
		if i%2 == 1 {
			tags = append(tags, Tag{Name: "App-Name", Value: fmt.Sprintf("test-%d", i)})
		}

		item, err := NewDataItem(wallet, data, tags)
		require.NoError(t, err)
		require.True(t, item.Verify())

		raw, err := item.MarshalBinary()
		require.NoError(t, err)
		parsed, numTags := parseDataItem(t, raw)
		require.Equal(t, uint64(len(tags)), numTags)
		require.Equal(t, item.Owner, parsed.Owner)
		require.Equal(t, item.Signature, parsed.Signature)
		require.Equal(t, item.Anchor, parsed.Anchor)
		require.Equal(t, tags, parsed.Tags)
		require.Equal(t, len(data), len(parsed.Data))
		require.True(t, parsed.Verify())

		sum := sha256.Sum256(item.Signature[:])
		require.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), item.ID())
	}
}

func TestDataItemTamperedData(t *testing.T) {
	wallet := newFakeWallet(t)
	item, err := NewDataItem(wallet, []byte("original"), nil)
	require.NoError(t, err)
	require.True(t, item.Verify())
	item.Data = []byte("modified")
	require.False(t, item.Verify())
}

func TestEncodeTagsEmpty(t *testing.T) {
	require.Empty(t, encodeTags(nil))
}

func TestDeepHashDistinguishesStructure(t *testing.T) {
	a := deepHash([]interface{}{[]byte("ab"), []byte("c")})
	b := deepHash([]interface{}{[]byte("a"), []byte("bc")})
	c := deepHash([]byte("abc"))
	require.Len(t, a, 48)
	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
}

type fakeNode struct {
	t       *testing.T
	address solana.PublicKey

	mu         sync.Mutex
	price      uint64
	balance    uint64
	fundings   []string
	uploads    [][]byte
	failUpload int
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/info":
		writeJSON(w, map[string]interface{}{
			"version":   "0.2.0",
			"addresses": map[string]string{"solana": n.address.String()},
		})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/price/solana/"):
		fmt.Fprintf(w, "%d", n.price)
	case r.Method == http.MethodGet && r.URL.Path == "/account/balance/solana":
		require.NotEmpty(n.t, r.URL.Query().Get("address"))
		writeJSON(w, map[string]string{"balance": fmt.Sprintf("%d", n.balance)})
	case r.Method == http.MethodPost && r.URL.Path == "/account/balance/solana":
		var req struct {
			TxID string `json:"tx_id"`
		}
		require.NoError(n.t, json.NewDecoder(r.Body).Decode(&req))
		n.fundings = append(n.fundings, req.TxID)
		n.balance += n.price
		writeJSON(w, map[string]string{"confirmed": "true"})
	case r.Method == http.MethodPost && r.URL.Path == "/tx/solana":
		if n.failUpload > 0 {
			n.failUpload--
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		body, err := io.ReadAll(r.Body)
		require.NoError(n.t, err)
		n.uploads = append(n.uploads, body)
		item, _ := parseDataItem(n.t, body)
		require.True(n.t, item.Verify())
		n.balance -= n.price
		writeJSON(w, map[string]interface{}{"id": item.ID(), "timestamp": 1})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, node *fakeNode) (*Client, *fakeWallet) {
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	wallet := newFakeWallet(t)
	client := New(Config{
		NodeURL:    srv.URL,
		GatewayURL: "https://arweave.net/",
		Attempts:   3,
		Delay:      time.Millisecond,
	}, wallet)
	return client, wallet
}

func TestUploadFundsWhenBalanceIsLow(t *testing.T) {
	nodeKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	node := &fakeNode{t: t, address: nodeKey.PublicKey(), price: 7000}
	client, wallet := newTestClient(t, node)
	ctx := context.Background()

	quote, err := client.Quote(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(7000), quote.Price)
	require.Equal(t, uint64(0), quote.Balance)

	upload, err := client.Upload(ctx, []byte("png bytes"), "image/png")
	require.NoError(t, err)
	require.Equal(t, []uint64{7000}, wallet.transfers)
	require.Equal(t, []solana.PublicKey{nodeKey.PublicKey()}, wallet.to)
	require.Len(t, node.fundings, 1)
	require.Len(t, node.uploads, 1)
	require.Equal(t, "https://arweave.net/"+upload.ID+"?ext=png", upload.URL)

	item, _ := parseDataItem(t, node.uploads[0])
	require.Equal(t, []byte("png bytes"), item.Data)
	require.Equal(t, []Tag{{Name: "Content-Type", Value: "image/png"}}, item.Tags)
	require.Equal(t, item.ID(), upload.ID)
}

func TestUploadSkipsFundingWithEnoughBalance(t *testing.T) {
	node := &fakeNode{t: t, price: 10, balance: 100}
	client, wallet := newTestClient(t, node)

	upload, err := client.Upload(context.Background(), []byte(`{"name":"x"}`), "application/json")
	require.NoError(t, err)
	require.Empty(t, wallet.transfers)
	require.Empty(t, node.fundings)
	require.Equal(t, "https://arweave.net/"+upload.ID, upload.URL)
}

func TestUploadRetriesTransientFailures(t *testing.T) {
	node := &fakeNode{t: t, price: 10, balance: 100, failUpload: 2}
	client, _ := newTestClient(t, node)

	_, err := client.Upload(context.Background(), []byte("data"), "application/json")
	require.NoError(t, err)
	require.Len(t, node.uploads, 1)
}

func TestUploadGivesUpAfterAttempts(t *testing.T) {
	node := &fakeNode{t: t, price: 10, balance: 100, failUpload: 5}
	client, _ := newTestClient(t, node)

	_, err := client.Upload(context.Background(), []byte("data"), "application/json")
	require.Error(t, err)
	var statusErr httpStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.code)
	require.Empty(t, node.uploads)
}

func TestParseLamports(t *testing.T) {
	v, err := parseLamports("12345")
	require.NoError(t, err)
	require.Equal(t, uint64(12345), v)
	v, err = parseLamports(`"77"`)
	require.NoError(t, err)
	require.Equal(t, uint64(77), v)
	v, err = parseLamports("5.0")
	require.NoError(t, err)
	require.Equal(t, uint64(5), v)
	_, err = parseLamports("-1")
	require.ErrorIs(t, err, ErrBadResponse)
}
