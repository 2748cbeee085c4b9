// Package bundlr uploads data to Arweave through a Bundlr node, paying for
// storage with SOL from the connected wallet.
package bundlr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"gitlab.com/scpcorp/spl-token-manager/common"
)

const (
	DevNetNode  = "https://devnet.bundlr.network"
	MainNetNode = "https://node1.bundlr.network"
	Gateway     = "https://arweave.net"

	currency = "solana"
)

var ErrBadResponse = errors.New("unexpected bundlr node response")

// Wallet signs data items and funds the node account.
type Wallet interface {
	MessageSigner
	Transfer(ctx context.Context, to solana.PublicKey, lamports uint64) (solana.Signature, error)
}

type Config struct {
	NodeURL    string
	GatewayURL string

	// Attempts and Delay configure retries of transient HTTP failures.
	Attempts uint
	Delay    time.Duration
}

type Client struct {
	config Config
	wallet Wallet
	http   *http.Client
	log    *logrus.Entry
}

func New(config Config, wallet Wallet) *Client {
	if config.NodeURL == "" {
		config.NodeURL = DevNetNode
	}
	if config.GatewayURL == "" {
		config.GatewayURL = Gateway
	}
	if config.Attempts == 0 {
		config.Attempts = 4
	}
	if config.Delay == 0 {
		config.Delay = time.Second
	}
	return &Client{
		config: config,
		wallet: wallet,
		http:   &http.Client{Timeout: time.Minute},
		log:    logrus.StandardLogger().WithField("type", "bundlr"),
	}
}

// Quote returns the price of storing size bytes and the wallet's balance
// loaded on the node, both in lamports.
func (c *Client) Quote(ctx context.Context, size int) (common.Quote, error) {
	owner, err := c.wallet.PublicKey()
	if err != nil {
		return common.Quote{}, err
	}
	price, err := c.price(ctx, size)
	if err != nil {
		return common.Quote{}, err
	}
	balance, err := c.balance(ctx, owner)
	if err != nil {
		return common.Quote{}, err
	}
	return common.Quote{Price: price, Balance: balance}, nil
}

// Upload funds the node if needed and posts a signed data item.
func (c *Client) Upload(ctx context.Context, data []byte, contentType string) (common.Upload, error) {
	quote, err := c.Quote(ctx, len(data))
	if err != nil {
		return common.Upload{}, err
	}
	if quote.Balance < quote.Price {
		if err := c.Fund(ctx, quote.Price); err != nil {
			return common.Upload{}, fmt.Errorf("cannot fund bundlr node: %w", err)
		}
	}

	item, err := NewDataItem(c.wallet, data, []Tag{{Name: "Content-Type", Value: contentType}})
	if err != nil {
		return common.Upload{}, err
	}
	raw, err := item.MarshalBinary()
	if err != nil {
		return common.Upload{}, err
	}

	var res struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/tx/"+currency, "application/octet-stream", raw, &res); err != nil {
		return common.Upload{}, fmt.Errorf("cannot upload data item: %w", err)
	}
	id := res.ID
	if id == "" {
		id = item.ID()
	}
	upload := common.Upload{ID: id, URL: c.PublicURL(id, contentType)}
	c.log.WithFields(logrus.Fields{
		"id":           upload.ID,
		"size":         len(data),
		"content_type": contentType,
	}).Info("uploaded data item")
	return upload, nil
}

// Fund transfers lamports to the node's address and registers the transfer.
func (c *Client) Fund(ctx context.Context, lamports uint64) error {
	nodeAddr, err := c.nodeAddress(ctx)
	if err != nil {
		return err
	}
	sig, err := c.wallet.Transfer(ctx, nodeAddr, lamports)
	if err != nil {
		return fmt.Errorf("cannot transfer to bundlr node: %w", err)
	}
	body, err := json.Marshal(map[string]string{"tx_id": sig.String()})
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPost, "/account/balance/"+currency, "application/json", body, nil); err != nil {
		return fmt.Errorf("cannot register funding tx %s: %w", sig, err)
	}
	c.log.WithFields(logrus.Fields{
		"lamports":  lamports,
		"signature": sig.String(),
	}).Info("funded bundlr node")
	return nil
}

// PublicURL returns the gateway URL of an uploaded item. Images get an
// extension hint so that wallets render them.
func (c *Client) PublicURL(id, contentType string) string {
	u := strings.TrimRight(c.config.GatewayURL, "/") + "/" + id
	if ext := common.ContentExtension(contentType); ext != "" {
		u += "?ext=" + ext
	}
	return u
}

func (c *Client) price(ctx context.Context, size int) (uint64, error) {
	var raw json.Number
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/price/%s/%d", currency, size), "", nil, &raw); err != nil {
		return 0, fmt.Errorf("cannot get price: %w", err)
	}
	return parseLamports(raw.String())
}

func (c *Client) balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	var res struct {
		Balance json.Number `json:"balance"`
	}
	path := "/account/balance/" + currency + "?address=" + url.QueryEscape(owner.String())
	if err := c.do(ctx, http.MethodGet, path, "", nil, &res); err != nil {
		return 0, fmt.Errorf("cannot get balance: %w", err)
	}
	return parseLamports(res.Balance.String())
}

func (c *Client) nodeAddress(ctx context.Context) (solana.PublicKey, error) {
	var info struct {
		Addresses map[string]string `json:"addresses"`
	}
	if err := c.do(ctx, http.MethodGet, "/info", "", nil, &info); err != nil {
		return solana.PublicKey{}, fmt.Errorf("cannot get node info: %w", err)
	}
	addr, ok := info.Addresses[currency]
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("%w: node has no %s address", ErrBadResponse, currency)
	}
	pub, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: bad node address: %v", ErrBadResponse, err)
	}
	return pub, nil
}

func parseLamports(s string) (uint64, error) {
	// Nodes return integers, sometimes quoted or with a ".0" suffix.
	s = strings.TrimSuffix(strings.Trim(s, `"`), ".0")
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad amount %q", ErrBadResponse, s)
	}
	return v, nil
}

type httpStatusError struct {
	code int
	body string
}

func (e httpStatusError) Error() string {
	return fmt.Sprintf("bundlr node returned %d: %s", e.code, e.body)
}

func isRetryable(err error) bool {
	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.code >= http.StatusInternalServerError || statusErr.code == http.StatusTooManyRequests
	}
	if errors.Is(err, ErrBadResponse) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, out interface{}) error {
	return retry.Do(
		func() error {
			var reader io.Reader
			if body != nil {
				reader = bytes.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.NodeURL, "/")+path, reader)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrBadResponse, err)
			}
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}
			resp, err := c.http.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			respBody, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return httpStatusError{code: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
			}
			if out == nil {
				return nil
			}
			dec := json.NewDecoder(bytes.NewReader(respBody))
			dec.UseNumber()
			if err := dec.Decode(out); err != nil {
				return fmt.Errorf("%w: %v", ErrBadResponse, err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.config.Attempts),
		retry.Delay(c.config.Delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
	)
}
