package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/recast/internal/metrics"
	"github.com/jmylchreest/recast/internal/pool"
)

// MetricsHandler serves the Prometheus scrape endpoint. Gauges are
// refreshed from the pool and the stream coordinator at scrape time so
// they never drift from the tables they mirror.
type MetricsHandler struct {
	metrics    *metrics.Metrics
	pool       *pool.Pool
	streams    StreamLister
	recordings RecordingLister
}

// NewMetricsHandler creates a new metrics handler. recordings may be
// nil when the recorder is disabled.
func NewMetricsHandler(m *metrics.Metrics, p *pool.Pool, streams StreamLister, recordings RecordingLister) *MetricsHandler {
	return &MetricsHandler{
		metrics:    m,
		pool:       p,
		streams:    streams,
		recordings: recordings,
	}
}

// RegisterChiRoutes registers the scrape route. The endpoint is not
// part of the OpenAPI document.
func (h *MetricsHandler) RegisterChiRoutes(router chi.Router) {
	router.Get("/metrics", h.metrics.Handler(h.updateGauges).ServeHTTP)
}

func (h *MetricsHandler) updateGauges() {
	snapshot := h.pool.Snapshot()
	allocated := 0
	for _, s := range snapshot {
		if s.Allocated {
			allocated++
		}
	}
	h.metrics.SetReceivers(allocated, len(snapshot))
	h.metrics.SetActiveStreams(len(h.streams.Streams()))
	if h.recordings != nil {
		h.metrics.SetActiveRecordings(len(h.recordings.Active()))
	}
}
