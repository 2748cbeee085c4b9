package solana

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/sirupsen/logrus"
)

const sendAttempts = 3

// Session is the connected wallet. Signing material is loaded from the
// configured keygen file on Connect and dropped on Disconnect.
type Session struct {
	config Config
	rpc    *rpc.Client
	log    *logrus.Entry

	mu  sync.Mutex
	key *solana.PrivateKey
	ws  *ws.Client
}

func NewSession(config Config) *Session {
	if config.ConfirmTimeout == 0 {
		config.ConfirmTimeout = defaultConfirmTimeout
	}
	if config.Commitment == "" {
		config.Commitment = rpc.CommitmentConfirmed
	}
	return &Session{
		config: config,
		rpc:    rpc.New(config.Cluster.RPC),
		log:    logrus.StandardLogger().WithField("type", "solana/session"),
	}
}

// Connect loads the wallet key and checks that the cluster is reachable.
// Connecting again with the same key is a no-op.
func (s *Session) Connect(ctx context.Context) (solana.PublicKey, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(s.config.SolanaKeygenFile)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("cannot create private key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil && s.key.PublicKey().Equals(key.PublicKey()) {
		return key.PublicKey(), nil
	}

	health, err := s.rpc.GetHealth(ctx)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("cluster %s is unreachable: %w", s.config.Cluster.Name, err)
	}
	if health != rpc.HealthOk {
		return solana.PublicKey{}, fmt.Errorf("cluster %s is unhealthy: %s", s.config.Cluster.Name, health)
	}

	s.key = &key
	s.log.WithField("wallet", key.PublicKey().String()).Info("wallet connected")
	return key.PublicKey(), nil
}

// Disconnect drops the wallet key and closes the websocket connection.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		s.log.WithField("wallet", s.key.PublicKey().String()).Info("wallet disconnected")
	}
	s.key = nil
	if s.ws != nil {
		s.ws.Close()
		s.ws = nil
	}
}

func (s *Session) PublicKey() (solana.PublicKey, error) {
	key, err := s.currentKey()
	if err != nil {
		return solana.PublicKey{}, err
	}
	return key.PublicKey(), nil
}

func (s *Session) currentKey() (solana.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil, ErrWalletNotConnected
	}
	return *s.key, nil
}

// Balance returns wallet balance in lamports.
func (s *Session) Balance(ctx context.Context) (uint64, error) {
	key, err := s.currentKey()
	if err != nil {
		return 0, err
	}
	res, err := s.rpc.GetBalance(ctx, key.PublicKey(), s.config.Commitment)
	if err != nil {
		return 0, fmt.Errorf("cannot get balance: %w", err)
	}
	return res.Value, nil
}

// SignMessage signs arbitrary bytes with the wallet key.
func (s *Session) SignMessage(msg []byte) (solana.Signature, error) {
	key, err := s.currentKey()
	if err != nil {
		return solana.Signature{}, err
	}
	sig, err := key.Sign(msg)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("cannot sign: %w", err)
	}
	return sig, nil
}

// Transfer sends lamports from the wallet to the given address.
func (s *Session) Transfer(ctx context.Context, to solana.PublicKey, lamports uint64) (solana.Signature, error) {
	from, err := s.PublicKey()
	if err != nil {
		return solana.Signature{}, err
	}
	return s.SendTransaction(ctx, []solana.Instruction{
		system.NewTransferInstruction(lamports, from, to).Build(),
	})
}

// SendTransaction signs instructions with the wallet (fee payer) and the
// extra signers, submits the transaction and waits for its confirmation.
func (s *Session) SendTransaction(ctx context.Context, instructions []solana.Instruction, extraSigners ...solana.PrivateKey) (solana.Signature, error) {
	key, err := s.currentKey()
	if err != nil {
		return solana.Signature{}, err
	}

	recent, err := s.rpc.GetLatestBlockhash(ctx, s.config.Commitment)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("cannot get latest blockhash: %w", err)
	}

	tx, err := signTx(instructions, recent.Value.Blockhash, key, extraSigners...)
	if err != nil {
		return solana.Signature{}, err
	}
	sig := tx.Signatures[0]
	log := s.log.WithField("signature", sig.String())
	log.Debug("sending transaction")

	programs := programsOf(instructions)
	if err := s.send(ctx, tx, programs); err != nil {
		return sig, fmt.Errorf("cannot send: %w", err)
	}

	wsClient, err := s.wsClient(ctx)
	if err != nil {
		return sig, err
	}
	if err := waitForConfirmation(ctx, wsClient, sig, s.config.Commitment, s.config.ConfirmTimeout, programs); err != nil {
		return sig, fmt.Errorf("cannot wait: %w", err)
	}
	log.Info("transaction confirmed")
	return sig, nil
}

// send retries transport failures only. A signed transaction has a fixed
// signature, so resubmitting it is idempotent.
func (s *Session) send(ctx context.Context, tx *solana.Transaction, programs []solana.PublicKey) error {
	opts := rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: s.config.Commitment,
	}
	return retry.Do(
		func() error {
			_, err := s.rpc.SendTransactionWithOpts(ctx, tx, opts)
			if err != nil {
				return parsePreflightError(err, programs)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(sendAttempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransportError),
	)
}

func isTransportError(err error) bool {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return false
	}
	var programErr ProgramError
	if errors.As(err, &programErr) {
		return false
	}
	for _, known := range customErrorMap {
		if errors.Is(err, known) {
			return false
		}
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (s *Session) wsClient(ctx context.Context) (*ws.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ws != nil {
		return s.ws, nil
	}
	wsClient, err := ws.Connect(ctx, s.config.Cluster.WS)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to websocket: %w", err)
	}
	s.ws = wsClient
	return wsClient, nil
}

func waitForConfirmation(
	ctx context.Context,
	wsClient *ws.Client,
	sig solana.Signature,
	commitment rpc.CommitmentType,
	timeout time.Duration,
	programs []solana.PublicKey,
) error {
	sub, err := wsClient.SignatureSubscribe(sig, commitment)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return ErrTimeout
		case resp, ok := <-sub.Response():
			if !ok {
				return fmt.Errorf("subscription closed")
			}
			if resp.Value.Err != nil {
				if err := parseErrorValue(resp.Value.Err, programs); err != nil {
					return err
				}
				// The transaction was confirmed, but one of the instructions failed.
				return fmt.Errorf("confirmed transaction with execution error: %v", resp.Value.Err)
			}
			return nil
		case err := <-sub.Err():
			return err
		}
	}
}

func signTx(instructions []solana.Instruction, blockhash solana.Hash, payer solana.PrivateKey, extraSigners ...solana.PrivateKey) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(
		instructions,
		blockhash,
		solana.TransactionPayer(payer.PublicKey()),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot create transaction: %w", err)
	}

	signers := append([]solana.PrivateKey{payer}, extraSigners...)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey().Equals(key) {
				return &signers[i]
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot sign: %w", err)
	}
	return tx, nil
}
