// Package metrics exposes Prometheus instrumentation on a private
// registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stream request outcomes.
const (
	OutcomeStarted        = "started"
	OutcomePoolExhausted  = "pool_exhausted"
	OutcomeUnknownChannel = "unknown_channel"
	OutcomeNotReady       = "not_ready"
)

// Metrics holds the counters and gauges for the bridge.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
	streamRequests     *prometheus.CounterVec
	streamBytesTotal   prometheus.Counter
	tunesTotal         *prometheus.CounterVec
	activeStreams      prometheus.Gauge
	receiversTotal     prometheus.Gauge
	receiversAllocated prometheus.Gauge
	activeRecordings   prometheus.Gauge
}

// New creates and registers the bridge metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recast_http_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recast_http_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	streamRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recast_stream_requests_total",
		Help: "Stream requests by outcome",
	}, []string{"outcome"})
	streamBytesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recast_stream_bytes_total",
		Help: "Total payload bytes delivered to streaming clients",
	})
	tunesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recast_tunes_total",
		Help: "Tuning attempts by result",
	}, []string{"result"})
	activeStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "recast_streams_active",
		Help: "Number of streams currently being served",
	})
	receiversTotal := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "recast_receivers_total",
		Help: "Number of configured receivers",
	})
	receiversAllocated := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "recast_receivers_allocated",
		Help: "Number of receivers currently allocated",
	})
	activeRecordings := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "recast_recordings_active",
		Help: "Number of captures currently running",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		streamRequests,
		streamBytesTotal,
		tunesTotal,
		activeStreams,
		receiversTotal,
		receiversAllocated,
		activeRecordings,
	)

	return &Metrics{
		registry:           registry,
		requestsTotal:      requestsTotal,
		errorsTotal:        errorsTotal,
		streamRequests:     streamRequests,
		streamBytesTotal:   streamBytesTotal,
		tunesTotal:         tunesTotal,
		activeStreams:      activeStreams,
		receiversTotal:     receiversTotal,
		receiversAllocated: receiversAllocated,
		activeRecordings:   activeRecordings,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the error response counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncStreamRequest records a stream request outcome.
func (m *Metrics) IncStreamRequest(outcome string) {
	m.streamRequests.WithLabelValues(outcome).Inc()
}

// AddStreamBytes adds delivered payload bytes.
func (m *Metrics) AddStreamBytes(n int64) {
	if n > 0 {
		m.streamBytesTotal.Add(float64(n))
	}
}

// IncTune records a tuning attempt result.
func (m *Metrics) IncTune(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.tunesTotal.WithLabelValues(result).Inc()
}

// SetActiveStreams sets the active streams gauge.
func (m *Metrics) SetActiveStreams(n int) {
	m.activeStreams.Set(float64(n))
}

// SetReceivers sets the receiver gauges.
func (m *Metrics) SetReceivers(allocated, total int) {
	m.receiversAllocated.Set(float64(allocated))
	m.receiversTotal.Set(float64(total))
}

// SetActiveRecordings sets the running captures gauge.
func (m *Metrics) SetActiveRecordings(n int) {
	m.activeRecordings.Set(float64(n))
}

// Handler returns an http.Handler that serves the registry.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
