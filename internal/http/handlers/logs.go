package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/recast/internal/logbuffer"
	"github.com/jmylchreest/recast/pkg/format"
)

// LogsHandler serves the in-memory log ring: recent entries, stream
// statistics, and a live SSE tail.
type LogsHandler struct {
	buffer            *logbuffer.Buffer
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// NewLogsHandler creates the logs handler.
func NewLogsHandler(buffer *logbuffer.Buffer) *LogsHandler {
	return &LogsHandler{
		buffer:            buffer,
		heartbeatInterval: logbuffer.HeartbeatInterval,
		logger:            slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *LogsHandler) WithLogger(logger *slog.Logger) *LogsHandler {
	h.logger = logger
	return h
}

// GetLogsInput is the input for getting recent logs.
type GetLogsInput struct {
	Limit int    `query:"limit" default:"100" doc:"Maximum number of entries to return (1-1000)"`
	Level string `query:"level" doc:"Only entries at this level"`
}

// GetLogsOutput is the output for getting recent logs.
type GetLogsOutput struct {
	Body struct {
		Logs []logbuffer.Entry `json:"logs"`
	}
}

// GetLogStatsInput is the input for log statistics.
type GetLogStatsInput struct{}

// GetLogStatsOutput is the output for log statistics.
type GetLogStatsOutput struct {
	Body struct {
		logbuffer.Stats
		TotalHuman string `json:"total_entries_human"`
	}
}

// Register registers the logs routes with the API. The SSE tail gets a
// documentation-only registration; RegisterChiRoutes installs the live
// handler.
func (h *LogsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getRecentLogs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent log entries",
		Description: "Returns the most recent entries from the in-memory ring buffer, oldest first.",
		Tags:        []string{"Logs"},
	}, h.GetRecentLogs)

	huma.Register(api, huma.Operation{
		OperationID: "getLogStats",
		Method:      http.MethodGet,
		Path:        "/api/logs/stats",
		Summary:     "Log stream statistics",
		Description: "Returns counts by level and component plus the recent error list.",
		Tags:        []string{"Logs"},
	}, h.GetStats)

	huma.Register(api, huma.Operation{
		OperationID: "streamLogs",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Live log tail",
		Description: "Server-Sent Events stream of log entries as they are captured. Sends a `:connected` comment on connect and a `:heartbeat` comment every " + logbuffer.HeartbeatInterval.String() + " without events.",
		Tags:        []string{"Logs"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "SSE event stream",
				Headers: map[string]*huma.Param{
					"Content-Type": {Description: "text/event-stream"},
				},
			},
		},
		SkipValidateBody: true,
	}, h.streamDocsHandler)
}

// StreamLogsInput documents the SSE route's query parameters.
type StreamLogsInput struct {
	Level   string `query:"level" doc:"Only entries at this level"`
	Initial int    `query:"initial" default:"50" doc:"Recent entries to replay on connect (0-500)"`
}

// streamDocsHandler exists only for OpenAPI generation; chi matches the
// raw handler first.
func (h *LogsHandler) streamDocsHandler(ctx context.Context, input *StreamLogsInput) (*huma.StreamResponse, error) {
	return nil, huma.Error500InternalServerError("this endpoint is handled by raw chi handlers", nil)
}

// RegisterChiRoutes registers the raw SSE route. Must be called after
// Register so the chi route wins.
func (h *LogsHandler) RegisterChiRoutes(router chi.Router) {
	router.Get("/api/logs/stream", h.handleSSEStream)
}

// GetRecentLogs serves the tail of the ring, optionally filtered by level.
func (h *LogsHandler) GetRecentLogs(ctx context.Context, input *GetLogsInput) (*GetLogsOutput, error) {
	limit := input.Limit
	switch {
	case limit <= 0:
		limit = 100
	case limit > logbuffer.DefaultMaxEntries:
		limit = logbuffer.DefaultMaxEntries
	}

	entries := h.buffer.Recent(limit)
	if input.Level != "" {
		// Recent returned a copy, so filtering in place is fine.
		filtered := entries[:0]
		for _, e := range entries {
			if e.Level == input.Level {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	resp := &GetLogsOutput{}
	resp.Body.Logs = entries
	return resp, nil
}

// GetStats serves the counters and rate for the captured stream.
func (h *LogsHandler) GetStats(ctx context.Context, input *GetLogStatsInput) (*GetLogStatsOutput, error) {
	resp := &GetLogStatsOutput{}
	resp.Body.Stats = h.buffer.Stats()
	resp.Body.TotalHuman = format.Number(resp.Body.Stats.TotalEntries)
	return resp, nil
}

// sseConn wraps the response writer for one event-stream client. Every
// write is flushed straight out; buffering would defeat a live tail.
type sseConn struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSEConn(w http.ResponseWriter) *sseConn {
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	return &sseConn{w: w, rc: http.NewResponseController(w)}
}

// comment sends an SSE comment line. Clients ignore it; proxies and idle
// connection reapers see traffic.
func (c *sseConn) comment(text string) error {
	if _, err := fmt.Fprintf(c.w, ":%s\n\n", text); err != nil {
		return err
	}
	return c.rc.Flush()
}

// event sends one entry as an SSE "log" event.
func (c *sseConn) event(entry logbuffer.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.w, "event: log\ndata: %s\n\n", data); err != nil {
		return err
	}
	return c.rc.Flush()
}

// handleSSEStream tails the log ring over Server-Sent Events.
func (h *LogsHandler) handleSSEStream(w http.ResponseWriter, r *http.Request) {
	level := r.URL.Query().Get("level")
	replay := replayCount(r.URL.Query().Get("initial"))

	h.logger.Debug("log tail connected", "remote", r.RemoteAddr, "replay", replay)
	defer h.logger.Debug("log tail disconnected", "remote", r.RemoteAddr)

	// Subscribe before replaying so entries logged during the replay are
	// queued rather than missed.
	sub := h.buffer.Subscribe(r.Context())

	conn := newSSEConn(w)
	if conn.comment("connected") != nil {
		return
	}

	if replay > 0 {
		for _, entry := range h.buffer.Recent(replay) {
			if level != "" && entry.Level != level {
				continue
			}
			if conn.event(entry) != nil {
				return
			}
		}
	}

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case now := <-heartbeat.C:
			if conn.comment(fmt.Sprintf("heartbeat %d", now.Unix())) != nil {
				return
			}
		case entry, ok := <-sub.Events:
			if !ok {
				return
			}
			if level != "" && entry.Level != level {
				continue
			}
			if conn.event(*entry) != nil {
				return
			}
		}
	}
}

// replayCount parses the initial query parameter, clamped to 0-500 with a
// default of 50.
func replayCount(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 50
	}
	if n > 500 {
		return 500
	}
	return n
}
