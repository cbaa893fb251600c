package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// ConnectConfig carries the connection settings a go-persistence-bun client
// needs. It satisfies the persistence.Config surface directly.
type ConnectConfig struct {
	Driver      string
	DSN         string
	Debug       bool
	PingTimeout time.Duration
}

func (c ConnectConfig) GetDebug() bool {
	return c.Debug
}

func (c ConnectConfig) GetDriver() string {
	return c.Driver
}

func (c ConnectConfig) GetServer() string {
	return c.DSN
}

func (c ConnectConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c ConnectConfig) GetOtelIdentifier() string {
	return "go-leads"
}

// Connect opens a database/sql handle for the configured driver and wraps it
// in a go-persistence-bun client with the matching bun dialect. The caller
// owns the returned client and closes it when done.
func Connect(cfg ConnectConfig) (*persistence.Client, error) {
	driver := strings.TrimSpace(strings.ToLower(cfg.Driver))
	if driver == "" {
		return nil, fmt.Errorf("sqlstore: connect driver is required")
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: connect dsn is required")
	}

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s database: %w", driver, err)
	}

	var client *persistence.Client
	switch driver {
	case DriverPostgres:
		client, err = persistence.New(cfg, sqlDB, pgdialect.New())
	case DriverSQLite:
		// Shared-cache in-memory databases misbehave past one connection.
		if strings.Contains(cfg.DSN, "mode=memory") {
			sqlDB.SetMaxOpenConns(1)
		}
		client, err = persistence.New(cfg, sqlDB, sqlitedialect.New())
	default:
		err = fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return client, nil
}
