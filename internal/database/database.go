// Package database opens the recordings catalog and wires GORM into the
// service's structured logging. SQLite is the default driver; Postgres and
// MySQL are available for shared deployments.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/jmylchreest/recast/internal/config"
	"github.com/jmylchreest/recast/internal/database/migrations"
)

// DB is an open catalog handle. The embedded *gorm.DB is what repositories
// query against; everything else on DB is lifecycle and introspection.
type DB struct {
	*gorm.DB

	driver string
	log    *slog.Logger
}

// New opens the catalog described by cfg. The returned handle is ready for
// queries but not migrated; call Migrate before handing it to repositories.
func New(cfg config.DatabaseConfig, log *slog.Logger) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}

	dial, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(dial, &gorm.Config{
		Logger: newQueryLogger(log, cfg.LogLevel),
		// Single statements do not need the implicit wrapping transaction.
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s catalog: %w", cfg.Driver, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrapping sql.DB: %w", err)
	}

	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if cfg.Driver == "sqlite" {
		// WAL mode allows readers alongside the single writer, but
		// connections past a handful only add lock contention between the
		// recorder's writes and the API's reads.
		maxOpen, maxIdle = 4, 2
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	log.Info("catalog opened",
		slog.String("driver", cfg.Driver),
		slog.Int("max_open_conns", maxOpen),
		slog.Int("max_idle_conns", maxIdle),
	)

	return &DB{DB: gdb, driver: cfg.Driver, log: log}, nil
}

// sqlitePragmas ride on the DSN so that every pooled connection gets them,
// not just the first one opened.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(sqliteDSN(cfg.DSN)), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func sqliteDSN(dsn string) string {
	params := make([]string, len(sqlitePragmas))
	for i, p := range sqlitePragmas {
		params[i] = "_pragma=" + p
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// Migrate brings the catalog schema up to date.
func (db *DB) Migrate(ctx context.Context) error {
	return migrations.Apply(ctx, db.DB, db.log)
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("unwrapping sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks that the catalog is reachable.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("unwrapping sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Driver reports which driver the catalog was opened with.
func (db *DB) Driver() string {
	return db.driver
}

// Stats exposes the connection pool counters for the health endpoint.
func (db *DB) Stats() (sql.DBStats, error) {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return sql.DBStats{}, fmt.Errorf("unwrapping sql.DB: %w", err)
	}
	return sqlDB.Stats(), nil
}
