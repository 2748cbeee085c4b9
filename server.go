package tokenmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"gitlab.com/scpcorp/spl-token-manager/common"
	"gitlab.com/scpcorp/spl-token-manager/solana"
)

const lamportsPerSolDecimals = 9

type Settings struct {
	// SweepInterval is how often orphaned uploads are removed. Zero disables
	// the sweeper. It never runs when storage cannot remove uploads.
	SweepInterval time.Duration
	SweepBatch    int

	// CleanupTimeout bounds removal of uploads after a failed creation.
	CleanupTimeout time.Duration
}

func (s *Settings) applyDefaults() {
	if s.SweepBatch <= 0 {
		s.SweepBatch = 50
	}
	if s.CleanupTimeout <= 0 {
		s.CleanupTimeout = time.Minute
	}
}

var _ Service = (*Server)(nil)

type Server struct {
	settings Settings

	wallet  Wallet
	chain   Chain
	storage Storage
	ledger  Ledger
	feed    Notifier

	log     *logrus.Entry
	now     func() time.Time
	newMint func() (solanago.PrivateKey, error)

	// flowMu serializes user flows: one submission at a time.
	flowMu sync.Mutex

	cacheMu sync.Mutex
	cache   *tokenCache

	cancel context.CancelFunc
	stopWg sync.WaitGroup // Close waits for this WaitGroup.
}

// tokenCache holds the wallet's token references. It is rebuilt on every
// connect and after each flow that changes balances or authorities.
type tokenCache struct {
	owner  solanago.PublicKey
	tokens []common.TokenReference
	byMint map[common.Address]int
	mints  map[common.Address]*solana.MintInfo
}

func New(settings *Settings, wallet Wallet, chain Chain, storage Storage, ledger Ledger, feed Notifier) (*Server, error) {
	if wallet == nil || chain == nil || storage == nil || ledger == nil || feed == nil {
		return nil, fmt.Errorf("wallet, chain, storage, ledger and notifier are required")
	}
	cfg := *settings
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		settings: cfg,
		wallet:   wallet,
		chain:    chain,
		storage:  storage,
		ledger:   ledger,
		feed:     feed,
		log:      logrus.StandardLogger().WithField("type", "tokenmanager"),
		now:      time.Now,
		newMint:  solanago.NewRandomPrivateKey,
		cancel:   cancel,
	}
	if remover, ok := storage.(Remover); ok && cfg.SweepInterval > 0 {
		s.runInALoop(ctx, "sweepOrphans", cfg.SweepInterval, func(ctx context.Context) error {
			return s.sweepOrphans(ctx, remover)
		})
	}
	return s, nil
}

func (s *Server) Close() error {
	s.cancel()
	s.stopWg.Wait()
	return nil
}

// fail reports a failed flow to the user and returns the typed API error.
func (s *Server) fail(action string, err error) error {
	var vErr ValidationError
	if errors.As(err, &vErr) {
		return vErr
	}
	s.feed.Errorf("%s failed: %v", action, err)
	return newError(fmt.Errorf("%s: %w", action, err))
}

// invalid reports an incomplete or malformed form.
func (s *Server) invalid(message string) error {
	s.feed.Warningf("%s", message)
	return ValidationError{Msg: message}
}

func (s *Server) Connect(ctx context.Context, req *ConnectRequest) (*ConnectResponse, error) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()

	owner, err := s.wallet.Connect(ctx)
	if err != nil {
		return nil, s.fail("connect", err)
	}
	s.dropCache()
	balance, err := s.wallet.Balance(ctx)
	if err != nil {
		return nil, s.fail("connect", err)
	}
	cache, err := s.refreshTokens(ctx, owner)
	if err != nil {
		return nil, s.fail("connect", err)
	}
	s.feed.Successf("Connected wallet %s", owner)
	return &ConnectResponse{
		Address: common.Address(owner),
		Balance: balance,
		Tokens:  cache.tokens,
	}, nil
}

func (s *Server) Disconnect(ctx context.Context, req *DisconnectRequest) (*DisconnectResponse, error) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()

	s.wallet.Disconnect()
	s.dropCache()
	s.feed.Infof("Wallet disconnected")
	return &DisconnectResponse{}, nil
}

func (s *Server) Wallet(ctx context.Context, req *WalletRequest) (*WalletResponse, error) {
	owner, err := s.wallet.PublicKey()
	if errors.Is(err, solana.ErrWalletNotConnected) {
		return &WalletResponse{}, nil
	} else if err != nil {
		return nil, newError(err)
	}
	balance, err := s.wallet.Balance(ctx)
	if err != nil {
		return nil, newError(fmt.Errorf("balance: %w", err))
	}
	return &WalletResponse{
		Connected: true,
		Address:   common.Address(owner),
		Balance:   balance,
		UIBalance: common.FormatUIAmount(balance, lamportsPerSolDecimals),
	}, nil
}

func (s *Server) StorageQuote(ctx context.Context, req *StorageQuoteRequest) (*StorageQuoteResponse, error) {
	if req.Size <= 0 {
		return nil, ValidationError{Msg: "size must be positive"}
	}
	quote, err := s.storage.Quote(ctx, req.Size)
	if err != nil {
		return nil, newError(fmt.Errorf("quote: %w", err))
	}
	return &StorageQuoteResponse{Price: quote.Price, Balance: quote.Balance}, nil
}

func (s *Server) Notifications(ctx context.Context, req *NotificationsRequest) (*NotificationsResponse, error) {
	return &NotificationsResponse{Notifications: s.feed.Since(req.After)}, nil
}

func (s *Server) History(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error) {
	owner, err := s.wallet.PublicKey()
	if err != nil {
		return nil, newError(err)
	}
	creations, err := s.ledger.Creations(ctx, common.Address(owner))
	if err != nil {
		return nil, newError(fmt.Errorf("history: %w", err))
	}
	return &HistoryResponse{Creations: creations}, nil
}

func (s *Server) dropCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache = nil
}

// cachedTokens returns the cache for owner, loading it if needed.
func (s *Server) cachedTokens(ctx context.Context, owner solanago.PublicKey) (*tokenCache, error) {
	s.cacheMu.Lock()
	cache := s.cache
	s.cacheMu.Unlock()
	if cache != nil && cache.owner.Equals(owner) {
		return cache, nil
	}
	return s.refreshTokens(ctx, owner)
}

// refreshTokens rebuilds the token cache from the chain. When the wallet has
// several accounts for a mint, the associated token account is used.
func (s *Server) refreshTokens(ctx context.Context, owner solanago.PublicKey) (*tokenCache, error) {
	accounts, err := s.chain.TokenAccounts(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("token accounts: %w", err)
	}
	cache := &tokenCache{
		owner:  owner,
		tokens: []common.TokenReference{},
		byMint: make(map[common.Address]int),
		mints:  make(map[common.Address]*solana.MintInfo),
	}
	for _, acc := range accounts {
		mint := common.Address(acc.Mint)
		ata, err := solana.AssociatedTokenAddress(owner, acc.Mint)
		if err != nil {
			return nil, err
		}
		if i, has := cache.byMint[mint]; has {
			if !ata.Equals(acc.Address) {
				continue
			}
			cache.tokens[i].Account = common.Address(acc.Address)
			cache.tokens[i].Amount = acc.Amount
			cache.tokens[i].UIAmount = common.FormatUIAmount(acc.Amount, cache.tokens[i].Decimals)
			continue
		}
		info, err := s.chain.Mint(ctx, acc.Mint)
		if err != nil {
			return nil, fmt.Errorf("mint %s: %w", acc.Mint, err)
		}
		ref := common.TokenReference{
			Mint:     mint,
			Account:  common.Address(acc.Address),
			Amount:   acc.Amount,
			Decimals: info.Decimals,
			UIAmount: common.FormatUIAmount(acc.Amount, info.Decimals),
		}
		md, err := s.chain.Metadata(ctx, acc.Mint)
		switch {
		case err == nil:
			ref.Name = md.Name
			ref.Symbol = md.Symbol
		case errors.Is(err, solana.ErrAccountNotFound):
		default:
			s.log.WithError(err).WithField("mint", acc.Mint.String()).Warn("Failed to read token metadata")
		}
		cache.byMint[mint] = len(cache.tokens)
		cache.tokens = append(cache.tokens, ref)
		cache.mints[mint] = info
	}

	s.cacheMu.Lock()
	s.cache = cache
	s.cacheMu.Unlock()
	return cache, nil
}

// refreshAfterFlow refreshes the cache once a transaction has landed. A
// failure here does not fail the flow.
func (s *Server) refreshAfterFlow(ctx context.Context, owner solanago.PublicKey) {
	if _, err := s.refreshTokens(ctx, owner); err != nil {
		s.dropCache()
		s.log.WithError(err).Warn("Failed to refresh token cache")
	}
}
