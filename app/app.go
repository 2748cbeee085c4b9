package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/starius/api2"

	tokenmanager "gitlab.com/scpcorp/spl-token-manager"
	"gitlab.com/scpcorp/spl-token-manager/bundlr"
	"gitlab.com/scpcorp/spl-token-manager/gcsstore"
	"gitlab.com/scpcorp/spl-token-manager/ledgerdb"
	"gitlab.com/scpcorp/spl-token-manager/notify"
	"gitlab.com/scpcorp/spl-token-manager/solana"
)

const (
	StorageBundlr = "bundlr"
	StorageGCS    = "gcs"
)

type Config struct {
	ApiAddr string `short:"a" long:"api-addr" env:"API_ADDR" default:":9580" description:"host:port that the API server listens on"`

	Cluster          string        `long:"cluster" env:"SOLANA_CLUSTER" default:"devnet" choice:"devnet" choice:"mainnet" choice:"custom" description:"Solana cluster"`
	RPCURL           string        `long:"rpc-url" env:"SOLANA_RPC_URL" description:"RPC endpoint of the custom cluster"`
	WSURL            string        `long:"ws-url" env:"SOLANA_WS_URL" description:"websocket endpoint of the custom cluster, derived from --rpc-url if empty"`
	SolanaKeygenFile string        `long:"solana-keygen-file" env:"SOLANA_KEYGEN_FILE" description:"wallet keypair written by solana-keygen"`
	ConfirmTimeout   time.Duration `long:"confirm-timeout" env:"CONFIRM_TIMEOUT" default:"2m" description:"how long to wait for transaction confirmation"`
	AutoConnect      bool          `long:"auto-connect" env:"AUTO_CONNECT" description:"connect the wallet on start"`

	Storage        string `long:"storage" env:"STORAGE" default:"bundlr" choice:"bundlr" choice:"gcs" description:"where token images and metadata are uploaded"`
	BundlrNode     string `long:"bundlr-node" env:"BUNDLR_NODE" description:"Bundlr node URL, chosen by cluster if empty"`
	ArweaveGateway string `long:"arweave-gateway" env:"ARWEAVE_GATEWAY" default:"https://arweave.net" description:"gateway used in public URLs of uploads"`
	GCSBucket      string `long:"gcs-bucket" env:"GCS_BUCKET" description:"public bucket for uploads"`
	GCSCredentials string `long:"gcs-credentials" env:"GCS_CREDENTIALS" description:"service account JSON, application default credentials if empty"`

	DBCfgPath     string        `long:"ledger-db-cfg" env:"DB_CFG_PATH" description:"Path to ledger DB config, in-memory ledger if empty"`
	SweepInterval time.Duration `long:"sweep-interval" env:"SWEEP_INTERVAL" default:"10m" description:"how often orphaned uploads are removed, 0 to disable"`

	LogLevel    string   `long:"log-level" env:"LOG_LEVEL" default:"info" description:"logrus level"`
	LogJSON     bool     `long:"log-json" env:"LOG_JSON" description:"log in JSON"`
	CorsOrigins []string `long:"cors-origin" env:"CORS_ORIGINS" env-delim:"," default:"*" description:"origins allowed to call the API from a browser"`
}

// SetupLogging configures the standard logrus logger.
func SetupLogging(c Config) error {
	level, err := logrus.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	if c.LogJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

func SolanaConfig(c Config) (solana.Config, error) {
	cfg, err := solana.ConfigForCluster(c.Cluster, c.SolanaKeygenFile, c.RPCURL, c.WSURL)
	if err != nil {
		return solana.Config{}, err
	}
	if c.ConfirmTimeout > 0 {
		cfg.ConfirmTimeout = c.ConfirmTimeout
	}
	return cfg, nil
}

// Components are the services behind the API, shared by the server and
// the command line client.
type Components struct {
	Session *solana.Session
	Chain   *solana.Chain
	Storage tokenmanager.Storage
	Ledger  tokenmanager.Ledger
	Feed    *notify.Feed

	closers []io.Closer
}

func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			logrus.WithError(err).Error("Failed to close component")
		}
	}
	if c.Session != nil {
		c.Session.Disconnect()
	}
}

func NewComponents(ctx context.Context, c Config) (*Components, error) {
	solanaConfig, err := SolanaConfig(c)
	if err != nil {
		return nil, fmt.Errorf("failed to build solana config: %w", err)
	}
	comps := &Components{
		Session: solana.NewSession(solanaConfig),
		Chain:   solana.NewChain(solanaConfig),
		Feed:    notify.NewFeed(notify.DefaultCapacity),
	}

	switch c.Storage {
	case StorageGCS:
		store, err := gcsstore.New(ctx, c.GCSBucket, c.GCSCredentials)
		if err != nil {
			return nil, fmt.Errorf("failed to open bucket: %w", err)
		}
		comps.Storage = store
		comps.closers = append(comps.closers, store)
	default:
		node := c.BundlrNode
		if node == "" {
			node = bundlr.DevNetNode
			if c.Cluster == "mainnet" {
				node = bundlr.MainNetNode
			}
		}
		comps.Storage = bundlr.New(bundlr.Config{
			NodeURL:    node,
			GatewayURL: c.ArweaveGateway,
		}, comps.Session)
	}

	if c.DBCfgPath == "" {
		logrus.Warn("No ledger DB configured, keeping uploads ledger in memory")
		comps.Ledger = ledgerdb.NewMemory()
	} else {
		var pg *sql.DB
		pg, err = ledgerdb.OpenPostgresWithRetries(c.DBCfgPath, 12)
		if err != nil {
			comps.Close()
			return nil, err
		}
		ldb, err := ledgerdb.NewDB(pg)
		if err != nil {
			_ = pg.Close()
			comps.Close()
			return nil, fmt.Errorf("failed to initialize ledgerDB: %w", err)
		}
		comps.Ledger = ldb
		comps.closers = append(comps.closers, ldb)
	}
	return comps, nil
}

type TokenManager struct {
	server     *http.Server
	components *Components
	closer     io.Closer
}

func New() *TokenManager {
	return &TokenManager{}
}

func NewRouter(c Config, routes []api2.Route) http.Handler {
	mux := http.NewServeMux()
	api2.BindRoutes(mux, routes)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: c.CorsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/v1/*", mux)
	return r
}

func (t *TokenManager) Start(c Config) error {
	if err := SetupLogging(c); err != nil {
		return err
	}
	ctx := context.Background()
	comps, err := NewComponents(ctx, c)
	if err != nil {
		return err
	}
	t.components = comps

	srv, err := tokenmanager.New(&tokenmanager.Settings{
		SweepInterval: c.SweepInterval,
	}, comps.Session, comps.Chain, comps.Storage, comps.Ledger, comps.Feed)
	if err != nil {
		return fmt.Errorf("could not initialize server: %w", err)
	}
	t.closer = srv

	if c.AutoConnect {
		if _, err := srv.Connect(ctx, &tokenmanager.ConnectRequest{}); err != nil {
			logrus.WithError(err).Warn("Failed to connect wallet on start")
		}
	}

	routes := tokenmanager.GetRoutes(srv)
	logrus.Infof("Listening on %v...", c.ApiAddr)
	t.server = &http.Server{
		Addr:              c.ApiAddr,
		Handler:           NewRouter(c, routes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("server.ListenAndServe failed")
		}
	}()

	return nil
}

func (t *TokenManager) Close() {
	if t.server != nil {
		if err := t.server.Close(); err != nil {
			logrus.WithError(err).Error("server.Close failed")
		}
	}
	if t.closer != nil {
		if err := t.closer.Close(); err != nil {
			logrus.WithError(err).Error("tokenmanager.Close failed")
		}
	}
	if t.components != nil {
		t.components.Close()
	}
}
