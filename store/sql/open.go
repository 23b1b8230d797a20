package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-buildrequests/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// DatabaseConfig satisfies the go-persistence-bun client config.
type DatabaseConfig struct {
	Driver         string        `koanf:"driver" json:"driver"`
	DSN            string        `koanf:"dsn" json:"dsn"`
	Debug          bool          `koanf:"debug" json:"debug"`
	PingTimeout    time.Duration `koanf:"ping_timeout" json:"ping_timeout"`
	OtelIdentifier string        `koanf:"otel_identifier" json:"otel_identifier"`
}

func (c DatabaseConfig) GetDebug() bool {
	return c.Debug
}

func (c DatabaseConfig) GetDriver() string {
	return normalizeDriver(c.Driver)
}

func (c DatabaseConfig) GetServer() string {
	return c.DSN
}

func (c DatabaseConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c DatabaseConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.OtelIdentifier) == "" {
		return "go-buildrequests"
	}
	return c.OtelIdentifier
}

// Open connects a persistence client for cfg.Driver and, when migrate is set,
// registers and applies the embedded schema for that dialect.
func Open(ctx context.Context, cfg DatabaseConfig, migrate bool) (*persistence.Client, error) {
	driver := cfg.GetDriver()
	dialect, migrationDialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	if !migrate {
		return client, nil
	}

	_, err = migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != migrationDialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithDialects(migrationDialect))
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

func dialectFor(driver string) (schema.Dialect, string, error) {
	migrationDialect, err := migrations.DialectForDriver(driver)
	if err != nil {
		return nil, "", fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	switch migrationDialect {
	case migrations.DialectPostgres:
		return pgdialect.New(), migrationDialect, nil
	default:
		return sqlitedialect.New(), migrationDialect, nil
	}
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pg":
		return DriverPostgres
	case "sqlite", "sqlite3", "":
		return DriverSQLite
	default:
		return strings.ToLower(strings.TrimSpace(driver))
	}
}
