package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/recast/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewServerDefaults(t *testing.T) {
	s := NewServer(config.ServerConfig{}, testLogger(), nil, "test")
	assert.Equal(t, "0.0.0.0:7300", s.Addr())

	s = NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 9999}, testLogger(), nil, "test")
	assert.Equal(t, "127.0.0.1:9999", s.Addr())
}

type pingOutput struct {
	Body struct {
		Pong string `json:"pong"`
	}
}

// The media endpoints register on the OpenAPI document and then override
// the path with a raw chi handler. The raw handler must win.
func TestRawRouteOverridesAPIRoute(t *testing.T) {
	s := NewServer(config.ServerConfig{}, testLogger(), nil, "test")

	huma.Register(s.API(), huma.Operation{
		OperationID: "ping",
		Method:      http.MethodGet,
		Path:        "/api/ping",
	}, func(ctx context.Context, input *struct{}) (*pingOutput, error) {
		out := &pingOutput{}
		out.Body.Pong = "api"
		return out, nil
	})
	s.Router().Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("raw"))
	})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "raw", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"), "middleware chain should run for raw routes")
}
