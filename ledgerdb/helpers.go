package ledgerdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	_ "github.com/lib/pq" // registers the postgres driver for sql.Open
	"github.com/sirupsen/logrus"
)

type config struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DBName   string `toml:"dbname"`
	SSLMode  string `toml:"sslmode"`
}

func (c config) dsn() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.DBName,
		sslMode,
	)
}

// OpenPostgres opens a connection described by a TOML file with keys host,
// port, user, password, dbname and sslmode.
func OpenPostgres(configPath string) (*sql.DB, error) {
	var cfg config
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read postgres config %s: %w", configPath, err)
	}
	return sql.Open("postgres", cfg.dsn())
}

// OpenPostgresWithRetries blocks until the database answers a ping or
// attempts run out.
func OpenPostgresWithRetries(configPath string, attempts int) (*sql.DB, error) {
	log := logrus.StandardLogger().WithField("type", "ledgerdb")
	interval := time.Second * 5
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i != 0 {
			time.Sleep(interval)
		}
		db, err := OpenPostgres(configPath)
		if err != nil {
			log.WithError(err).Warn("Failed to open postgres")
			lastErr = err
			continue
		}
		if err := db.Ping(); err != nil {
			log.WithError(err).Warn("Failed to ping postgres")
			_ = db.Close()
			lastErr = err
			continue
		}
		return db, nil
	}
	return nil, fmt.Errorf("postgres is unreachable after %d attempts: %w", attempts, lastErr)
}
