package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-hookrelay/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open. sqlite3 is the cgo driver, sqlite the pure
// Go one.
const (
	DriverSQLite3  = "sqlite3"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OpenConfig satisfies the persistence client configuration contract.
type OpenConfig struct {
	Driver      string
	DSN         string
	Debug       bool
	PingTimeout time.Duration
	// MaxOpenConns is forced to 1 for in-memory sqlite so every query sees
	// the same database.
	MaxOpenConns int
}

func (c OpenConfig) GetDebug() bool {
	return c.Debug
}

func (c OpenConfig) GetDriver() string {
	return c.Driver
}

func (c OpenConfig) GetServer() string {
	return c.DSN
}

func (c OpenConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c OpenConfig) GetOtelIdentifier() string {
	return "go-hookrelay"
}

// Open connects, registers the embedded migrations for the driver's dialect
// and applies them.
func Open(ctx context.Context, cfg OpenConfig) (*persistence.Client, error) {
	cfg.Driver = strings.TrimSpace(strings.ToLower(cfg.Driver))
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}
	dialectName, err := migrations.NormalizeDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	driver := cfg.Driver
	if driver == "postgresql" || driver == "pg" || driver == "pgx" {
		driver = DriverPostgres
	}

	var dialect schema.Dialect
	switch dialectName {
	case migrations.DialectPostgres:
		dialect = pgdialect.New()
	default:
		dialect = sqlitedialect.New()
	}

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if dialectName == migrations.DialectSQLite && strings.Contains(cfg.DSN, "mode=memory") {
		cfg.MaxOpenConns = 1
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: persistence client: %w", err)
	}

	_, err = migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != dialectName {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(dialectName))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return client, nil
}
