package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/recast/internal/config"
)

// fakeReloader records the receiver tables the handler pushed into the pool.
type fakeReloader struct {
	mu    sync.Mutex
	calls [][]config.ReceiverSpec
}

func (f *fakeReloader) Reload(specs []config.ReceiverSpec) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, specs)
}

func (f *fakeReloader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testLineup() config.Lineup {
	return config.Lineup{
		Receivers: []config.ReceiverSpec{
			{Name: "den", Control: "10.0.0.2", Source: "http://10.0.0.3/stream", Priority: 1},
			{Name: "attic", Control: "10.0.0.4", Source: "http://10.0.0.5/stream", Priority: 2},
		},
		Channels: []config.Channel{
			{ID: "espn", Name: "ESPN", AppID: "12345"},
		},
		EPGChannels: []config.Channel{
			{ID: "hbo", Name: "HBO", AppID: "61322", TvgID: "hbo.us"},
		},
	}
}

func newConfigHandler(t *testing.T) (*ConfigHandler, *config.Store, *fakeReloader) {
	t.Helper()
	store := config.NewStore(filepath.Join(t.TempDir(), "lineup.yaml"))
	reloader := &fakeReloader{}
	h := NewConfigHandler(store, reloader).WithLogger(discardLogger())
	return h, store, reloader
}

func TestConfigHandler_GetConfig(t *testing.T) {
	h, store, _ := newConfigHandler(t)

	lineup := testLineup()
	require.NoError(t, store.Replace(&lineup))

	resp, err := h.GetConfig(context.Background(), &GetConfigInput{})
	require.NoError(t, err)
	assert.Len(t, resp.Body.Receivers, 2)
	assert.Len(t, resp.Body.Channels, 1)
}

func TestConfigHandler_PutConfig(t *testing.T) {
	h, store, reloader := newConfigHandler(t)

	resp, err := h.PutConfig(context.Background(), &PutConfigInput{Body: testLineup()})
	require.NoError(t, err)
	assert.True(t, resp.Body.Success)
	assert.Equal(t, 2, resp.Body.Receivers)
	assert.Equal(t, 2, resp.Body.Channels, "channel count covers both playlists")

	require.Equal(t, 1, reloader.count(), "pool not rebuilt after replace")

	// The document was persisted; a fresh store sees it.
	fresh := config.NewStore(store.Path())
	require.NoError(t, fresh.Load())
	assert.Len(t, fresh.Current().Receivers, 2)

	t.Run("invalid lineup", func(t *testing.T) {
		bad := testLineup()
		bad.Receivers[0].Name = ""

		_, err := h.PutConfig(context.Background(), &PutConfigInput{Body: bad})
		assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
		assert.Equal(t, 1, reloader.count(), "pool rebuilt from a rejected lineup")

		// The active document is untouched.
		assert.Len(t, h.store.Current().Receivers, 2)
	})
}

func TestConfigHandler_ReloadConfig(t *testing.T) {
	h, store, reloader := newConfigHandler(t)

	lineup := testLineup()
	require.NoError(t, store.Replace(&lineup))

	// Rewrite the file behind the store's back, then reload.
	doc := `receivers:
  - name: den
    control: 10.0.0.2
    source: http://10.0.0.3/stream
channels:
  - id: espn
    name: ESPN
    app_id: "12345"
  - id: tnt
    name: TNT
    app_id: "43908"
`
	require.NoError(t, os.WriteFile(store.Path(), []byte(doc), 0o644))

	resp, err := h.ReloadConfig(context.Background(), &ReloadConfigInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Body.Receivers)
	assert.Equal(t, 2, resp.Body.Channels)
	assert.Equal(t, 1, reloader.count())
	assert.Len(t, store.Current().Receivers, 1)
}
