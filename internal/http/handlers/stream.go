package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/recast/internal/config"
	"github.com/jmylchreest/recast/internal/keepalive"
	"github.com/jmylchreest/recast/internal/metrics"
	"github.com/jmylchreest/recast/internal/pool"
	"github.com/jmylchreest/recast/internal/stream"
	"github.com/jmylchreest/recast/internal/tuner"
)

// LineupProvider hands out the active lineup document.
type LineupProvider interface {
	Current() *config.Lineup
}

// StreamHandler serves the live-tune media route: allocate a receiver,
// drive it to the channel in the background, and stream MPEG-TS until the
// client disconnects.
type StreamHandler struct {
	lineup    LineupProvider
	pool      *pool.Pool
	coord     *stream.Coordinator
	tuner     *tuner.Tuner
	keepalive *keepalive.Manager
	metrics   *metrics.Metrics
	cfg       config.StreamingConfig
	logger    *slog.Logger
}

// NewStreamHandler creates the live streaming handler.
func NewStreamHandler(lineup LineupProvider, p *pool.Pool, coord *stream.Coordinator, t *tuner.Tuner, ka *keepalive.Manager, m *metrics.Metrics, cfg config.StreamingConfig) *StreamHandler {
	return &StreamHandler{
		lineup:    lineup,
		pool:      p,
		coord:     coord,
		tuner:     t,
		keepalive: ka,
		metrics:   m,
		cfg:       cfg,
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *StreamHandler) WithLogger(logger *slog.Logger) *StreamHandler {
	h.logger = logger
	return h
}

// StreamChannelInput documents the stream route's path parameter.
type StreamChannelInput struct {
	ContentID string `path:"content_id" doc:"Channel ID from the lineup"`
}

// Register registers a documentation-only operation for the stream route.
// The live handler is registered through RegisterChiRoutes, which takes
// precedence; huma's typed path buffers responses and commits a 200 before
// the body runs, neither of which works for an open-ended transport
// stream.
func (h *StreamHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "streamChannel",
		Method:      http.MethodGet,
		Path:        "/stream/{content_id}",
		Summary:     "Stream a channel",
		Description: `Allocates the highest-priority free receiver, tunes it to the channel in the background, and serves MPEG-TS until the client disconnects. The receiver returns to the pool when the stream ends, whatever the cause.

**Response Headers:**
- X-Receiver: name of the receiver serving the stream
- X-Stream-Mode: proxy, remux, or reencode`,
		Tags: []string{"Streaming"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "MPEG-TS transport stream",
				Headers: map[string]*huma.Param{
					"Content-Type":  {Description: mpegtsContentType},
					"X-Receiver":    {Description: "Receiver serving the stream"},
					"X-Stream-Mode": {Description: "Pipeline mode in effect"},
				},
			},
			"404": {Description: "Unknown channel"},
			"503": {Description: "Every receiver is allocated or sessioned"},
		},
		SkipValidateBody: true,
	}, h.streamDocsHandler)
}

// streamDocsHandler exists only for OpenAPI generation; chi matches the
// raw handler first.
func (h *StreamHandler) streamDocsHandler(ctx context.Context, input *StreamChannelInput) (*huma.StreamResponse, error) {
	return nil, huma.Error500InternalServerError("this endpoint is handled by raw chi handlers", nil)
}

// RegisterChiRoutes registers the raw streaming route. Must be called
// after Register so the chi route wins.
func (h *StreamHandler) RegisterChiRoutes(router chi.Router) {
	router.Get("/stream/{content_id}", h.handleStream)
}

func (h *StreamHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "content_id")

	channel, ok := h.lineup.Current().ChannelByID(contentID)
	if !ok {
		h.metrics.IncStreamRequest(metrics.OutcomeUnknownChannel)
		http.Error(w, fmt.Sprintf("unknown channel %q", contentID), http.StatusNotFound)
		return
	}

	receiver, ok := h.pool.Allocate()
	if !ok {
		h.metrics.IncStreamRequest(metrics.OutcomePoolExhausted)
		http.Error(w, "all receivers are busy", http.StatusServiceUnavailable)
		return
	}

	// The handle owns the release duty from the moment it exists. The
	// deferred Release covers the window before Stream installs its own;
	// calling it twice is safe.
	handle := h.coord.Open(receiver.Source, modeFor(receiver, h.cfg, h.logger), prerollFor(channel, h.cfg), receiver.Name, func() {
		h.pool.Release(receiver.Name)
	})
	defer handle.Release()

	if ka := channel.KeepAlive; ka != nil {
		h.keepalive.Start(receiver.Name, receiver.Control, ka.Key, ka.Interval.Std())
	}

	go h.tune(r.Context(), receiver, *channel)

	setStreamHeaders(w, receiver.Name, string(handle.Mode))
	h.metrics.IncStreamRequest(metrics.OutcomeStarted)

	// Stream logs its own termination; the error here is already handled.
	_ = handle.Stream(r.Context(), w)
	h.metrics.AddStreamBytes(handle.BytesWritten())
}

// tune drives the receiver in the background. A tuning failure shows up
// as a blank picture, never as an HTTP error: the client already holds an
// open response by the time the device settles.
func (h *StreamHandler) tune(ctx context.Context, receiver *pool.Receiver, channel config.Channel) {
	err := h.tuner.Tune(ctx, receiver, channel)
	h.metrics.IncTune(err == nil)
	if err != nil {
		h.logger.Error("background tune failed",
			"receiver", receiver.Name,
			"channel", channel.ID,
			"error", err)
	}
}

// modeFor resolves the pipeline mode: receiver override, else the global
// default. Validation at load time keeps both well-formed; an invalid
// value still degrades to proxy instead of refusing to serve.
func modeFor(receiver *pool.Receiver, cfg config.StreamingConfig, logger *slog.Logger) stream.Mode {
	raw := receiver.Mode
	if raw == "" {
		raw = cfg.Mode
	}
	mode, err := stream.ParseMode(raw)
	if err != nil {
		logger.Warn("invalid stream mode, falling back to proxy", "mode", raw)
		return stream.ModeProxy
	}
	return mode
}

// prerollFor resolves the filler duration: channel override, else the
// global default.
func prerollFor(channel *config.Channel, cfg config.StreamingConfig) time.Duration {
	if channel.Preroll > 0 {
		return channel.Preroll.Std()
	}
	return cfg.Preroll
}
