package tokenmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"gitlab.com/scpcorp/spl-token-manager/common"
	"gitlab.com/scpcorp/spl-token-manager/ledgerdb"
	"gitlab.com/scpcorp/spl-token-manager/notify"
	"gitlab.com/scpcorp/spl-token-manager/solana"
)

type sentTx struct {
	instructions []solanago.Instruction
	signers      []solanago.PrivateKey
}

type fakeWallet struct {
	key       solanago.PrivateKey
	connected bool
	balance   uint64
	sendErr   error

	mu   sync.Mutex
	sent []sentTx
}

func (w *fakeWallet) Connect(ctx context.Context) (solanago.PublicKey, error) {
	w.connected = true
	return w.key.PublicKey(), nil
}

func (w *fakeWallet) Disconnect() {
	w.connected = false
}

func (w *fakeWallet) PublicKey() (solanago.PublicKey, error) {
	if !w.connected {
		return solanago.PublicKey{}, solana.ErrWalletNotConnected
	}
	return w.key.PublicKey(), nil
}

func (w *fakeWallet) Balance(ctx context.Context) (uint64, error) {
	return w.balance, nil
}

func (w *fakeWallet) SendTransaction(ctx context.Context, instructions []solanago.Instruction, extraSigners ...solanago.PrivateKey) (solanago.Signature, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, sentTx{instructions: instructions, signers: extraSigners})
	if w.sendErr != nil {
		return solanago.Signature{}, w.sendErr
	}
	var sig solanago.Signature
	sig[0] = byte(len(w.sent))
	return sig, nil
}

type fakeChain struct {
	mu       sync.Mutex
	accounts []solana.TokenAccount
	mints    map[solanago.PublicKey]*solana.MintInfo
	metadata map[solanago.PublicKey]*solana.TokenMetadata
	rent     uint64
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		mints:    make(map[solanago.PublicKey]*solana.MintInfo),
		metadata: make(map[solanago.PublicKey]*solana.TokenMetadata),
		rent:     1461600,
	}
}

// addToken gives owner an associated token account of a new mint.
func (c *fakeChain) addToken(t *testing.T, owner solanago.PublicKey, amount uint64, info solana.MintInfo) solanago.PublicKey {
	mintKey, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	mint := mintKey.PublicKey()
	ata, err := solana.AssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts = append(c.accounts, solana.TokenAccount{Address: ata, Mint: mint, Owner: owner, Amount: amount})
	c.mints[mint] = &info
	return mint
}

// addAccount gives owner a token account of mint at address.
func (c *fakeChain) addAccount(owner, mint, address solanago.PublicKey, amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts = append(c.accounts, solana.TokenAccount{Address: address, Mint: mint, Owner: owner, Amount: amount})
}

func (c *fakeChain) TokenAccounts(ctx context.Context, owner solanago.PublicKey) ([]solana.TokenAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []solana.TokenAccount
	for _, acc := range c.accounts {
		if acc.Owner.Equals(owner) {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (c *fakeChain) Mint(ctx context.Context, mint solanago.PublicKey) (*solana.MintInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, has := c.mints[mint]
	if !has {
		return nil, solana.ErrAccountNotFound
	}
	cp := *info
	return &cp, nil
}

func (c *fakeChain) RentExemptMint(ctx context.Context) (uint64, error) {
	return c.rent, nil
}

func (c *fakeChain) Metadata(ctx context.Context, mint solanago.PublicKey) (*solana.TokenMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	md, has := c.metadata[mint]
	if !has {
		return nil, solana.ErrAccountNotFound
	}
	return md, nil
}

type storedObject struct {
	data        []byte
	contentType string
}

type fakeStorage struct {
	mu        sync.Mutex
	objects   map[string]storedObject
	uploads   []string
	failAfter int // fail uploads once this many succeeded; 0 disables
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string]storedObject)}
}

func (s *fakeStorage) Quote(ctx context.Context, size int) (common.Quote, error) {
	return common.Quote{Price: uint64(size) * 10, Balance: 5}, nil
}

func (s *fakeStorage) Upload(ctx context.Context, data []byte, contentType string) (common.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.uploads) >= s.failAfter {
		return common.Upload{}, errors.New("storage node unavailable")
	}
	id := fmt.Sprintf("item-%d", len(s.uploads)+1)
	s.objects[id] = storedObject{data: append([]byte(nil), data...), contentType: contentType}
	s.uploads = append(s.uploads, id)
	return common.Upload{ID: id, URL: "https://arweave.test/" + id}, nil
}

type removableStorage struct {
	*fakeStorage
	removeErr error
	removed   []string
}

func (s *removableStorage) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	delete(s.objects, id)
	s.removed = append(s.removed, id)
	return nil
}

type testEnv struct {
	server  *Server
	wallet  *fakeWallet
	chain   *fakeChain
	storage Storage
	ledger  *ledgerdb.Memory
	feed    *notify.Feed
	owner   solanago.PublicKey
	mintKey solanago.PrivateKey
}

func newTestEnv(t *testing.T, storage Storage) *testEnv {
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	mintKey, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	wallet := &fakeWallet{key: key, connected: true, balance: 2_500_000_000}
	chain := newFakeChain()
	ledger := ledgerdb.NewMemory()
	feed := notify.NewFeed(100)
	s, err := New(&Settings{}, wallet, chain, storage, ledger, feed)
	require.NoError(t, err)
	s.newMint = func() (solanago.PrivateKey, error) { return mintKey, nil }
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return &testEnv{
		server:  s,
		wallet:  wallet,
		chain:   chain,
		storage: storage,
		ledger:  ledger,
		feed:    feed,
		owner:   key.PublicKey(),
		mintKey: mintKey,
	}
}

func (e *testEnv) lastNotification(t *testing.T) notify.Notification {
	n, ok := e.feed.Last()
	require.True(t, ok)
	return n
}

func requireValidation(t *testing.T, err error) {
	var vErr ValidationError
	require.ErrorAs(t, err, &vErr)
}
