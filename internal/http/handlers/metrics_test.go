package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/recast/internal/stream"
)

func TestMetricsHandler_Scrape(t *testing.T) {
	e := newEnv(t,
		receiverSpec("a", 1, "http://encoder.local/a"),
		receiverSpec("b", 2, "http://encoder.local/b"),
	)
	_, ok := e.pool.Allocate()
	require.True(t, ok)

	streams := stubStreams{{ID: "s1", Receiver: "a", Mode: stream.ModeProxy}}
	recordings := stubRecordings{{ID: "r1", Title: "The Game", Receiver: "b"}}

	e.metrics.IncStreamRequest("started")
	e.metrics.AddStreamBytes(188)

	h := NewMetricsHandler(e.metrics, e.pool, streams, recordings)
	router := chi.NewRouter()
	h.RegisterChiRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "recast_receivers_total 2")
	assert.Contains(t, body, "recast_receivers_allocated 1")
	assert.Contains(t, body, "recast_streams_active 1")
	assert.Contains(t, body, "recast_recordings_active 1")
	assert.Contains(t, body, `recast_stream_requests_total{outcome="started"} 1`)
	assert.Contains(t, body, "recast_stream_bytes_total 188")
}

func TestMetricsHandler_NoRecorder(t *testing.T) {
	e := newEnv(t, receiverSpec("a", 1, "http://encoder.local/a"))

	h := NewMetricsHandler(e.metrics, e.pool, stubStreams{}, nil)
	router := chi.NewRouter()
	h.RegisterChiRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "recast_receivers_total 1")
	assert.Contains(t, rec.Body.String(), "recast_recordings_active 0")
}
