package handlers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/recast/internal/config"
	"github.com/jmylchreest/recast/internal/database"
)

func TestHealthHandler_GetHealth(t *testing.T) {
	h := NewHealthHandler()

	resp, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)

	assert.Equal(t, "ok", resp.Body.Status)
	assert.NotEmpty(t, resp.Body.Version)
	assert.NotEmpty(t, resp.Body.Uptime)
	assert.GreaterOrEqual(t, resp.Body.UptimeSeconds, 0.0)

	_, err = time.Parse(time.RFC3339, resp.Body.Timestamp)
	assert.NoError(t, err, "timestamp not RFC3339")

	assert.Equal(t, "disabled", resp.Body.Database.Status, "no catalog configured")
}

func TestHealthHandler_WithCatalog(t *testing.T) {
	db, err := database.New(config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "catalog.db"),
		LogLevel: "silent",
	}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	h := NewHealthHandler().WithDB(db)

	resp, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)

	assert.Equal(t, "ok", resp.Body.Database.Status)
	assert.Equal(t, "sqlite", resp.Body.Database.Driver)
	assert.Greater(t, resp.Body.Database.OpenConns, 0, "ping should leave a pooled connection")
}
