package database

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/recast/internal/config"
)

func catalogConfig(t *testing.T) config.DatabaseConfig {
	t.Helper()
	return config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             filepath.Join(t.TempDir(), "catalog.db"),
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute,
		LogLevel:        "silent",
	}
}

func openCatalog(t *testing.T) *DB {
	t.Helper()
	db, err := New(catalogConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func TestNew(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		db := openCatalog(t)

		assert.Equal(t, "sqlite", db.Driver())
		assert.NoError(t, db.Ping(context.Background()))
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := catalogConfig(t)
		cfg.Driver = "oracle"

		_, err := New(cfg, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database driver")
	})
}

func TestSQLiteDSN(t *testing.T) {
	dsn := sqliteDSN("/var/lib/recast/catalog.db")
	assert.True(t, strings.HasPrefix(dsn, "/var/lib/recast/catalog.db?"))
	assert.Contains(t, dsn, "_pragma=journal_mode(WAL)")
	assert.Contains(t, dsn, "_pragma=busy_timeout(5000)")
	assert.Contains(t, dsn, "_pragma=foreign_keys(ON)")

	// An existing query string is extended, not replaced.
	assert.Contains(t, sqliteDSN("catalog.db?mode=ro"), "catalog.db?mode=ro&_pragma=")
}

func TestMigrate(t *testing.T) {
	db := openCatalog(t)
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx))
	assert.True(t, db.Migrator().HasTable("recordings"))
	assert.True(t, db.Migrator().HasTable("schema_migrations"))

	// Re-running is a no-op: applied steps are skipped.
	require.NoError(t, db.Migrate(ctx))
}

func TestStats(t *testing.T) {
	db := openCatalog(t)
	require.NoError(t, db.Ping(context.Background()))

	stats, err := db.Stats()
	require.NoError(t, err)

	// SQLite ignores the configured pool size in favour of the small
	// WAL-friendly one.
	assert.Equal(t, 4, stats.MaxOpenConnections)
}
