package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/recast/internal/config"
	"github.com/jmylchreest/recast/internal/metrics"
	"github.com/jmylchreest/recast/internal/pool"
	"github.com/jmylchreest/recast/internal/session"
	"github.com/jmylchreest/recast/internal/stream"
)

// SessionHandler drives the preview/commit workflow: park a receiver,
// tune it by hand, then commit it to a recording or hand it to exactly
// one downstream consumer.
type SessionHandler struct {
	manager *session.Manager
	pool    *pool.Pool
	coord   *stream.Coordinator
	metrics *metrics.Metrics
	cfg     config.StreamingConfig
	logger  *slog.Logger
}

// NewSessionHandler creates the session workflow handler.
func NewSessionHandler(manager *session.Manager, p *pool.Pool, coord *stream.Coordinator, m *metrics.Metrics, cfg config.StreamingConfig) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		pool:    p,
		coord:   coord,
		metrics: m,
		cfg:     cfg,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *SessionHandler) WithLogger(logger *slog.Logger) *SessionHandler {
	h.logger = logger
	return h
}

// Register registers the session operations. The consume route is
// documentation-only here; RegisterChiRoutes installs the live handler.
func (h *SessionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "startSession",
		Method:      http.MethodPost,
		Path:        "/api/session/start",
		Summary:     "Start a session",
		Description: "Claims a receiver for manual tuning. Without a receiver name the highest-priority free receiver is picked. The receiver stays parked until the session is committed, consumed, or stopped.",
		Tags:        []string{"Sessions"},
	}, h.StartSession)

	huma.Register(api, huma.Operation{
		OperationID: "commitSession",
		Method:      http.MethodPost,
		Path:        "/api/session/commit",
		Summary:     "Commit a session",
		Description: "Marks the session ready. With record set and a positive duration the receiver's source is captured to disk and the session ends when the capture does; otherwise the session waits for exactly one consume.",
		Tags:        []string{"Sessions"},
	}, h.CommitSession)

	huma.Register(api, huma.Operation{
		OperationID: "stopSession",
		Method:      http.MethodPost,
		Path:        "/api/session/stop",
		Summary:     "Stop a session",
		Description: "Releases the receiver through the standard release path. Safe in any session state.",
		Tags:        []string{"Sessions"},
	}, h.StopSession)

	huma.Register(api, huma.Operation{
		OperationID: "listSessions",
		Method:      http.MethodGet,
		Path:        "/api/session",
		Summary:     "List open sessions",
		Tags:        []string{"Sessions"},
	}, h.ListSessions)

	huma.Register(api, huma.Operation{
		OperationID: "consumeSession",
		Method:      http.MethodGet,
		Path:        "/session/consume",
		Summary:     "Consume a committed session",
		Description: "Claims the committed session and streams the pre-tuned receiver's source as MPEG-TS. Without a receiver query parameter the committed session with the best priority is taken. Each committed session can be consumed exactly once.",
		Tags:        []string{"Sessions"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "MPEG-TS transport stream",
				Headers: map[string]*huma.Param{
					"Content-Type": {Description: mpegtsContentType},
					"X-Receiver":   {Description: "Receiver serving the stream"},
				},
			},
			"404": {Description: "No committed session ready"},
		},
		SkipValidateBody: true,
	}, h.consumeDocsHandler)
}

// ConsumeSessionInput documents the consume route's query parameter.
type ConsumeSessionInput struct {
	Receiver string `query:"receiver" doc:"Receiver name; empty takes the best-priority committed session"`
}

// consumeDocsHandler exists only for OpenAPI generation; chi matches the
// raw handler first.
func (h *SessionHandler) consumeDocsHandler(ctx context.Context, input *ConsumeSessionInput) (*huma.StreamResponse, error) {
	return nil, huma.Error500InternalServerError("this endpoint is handled by raw chi handlers", nil)
}

// RegisterChiRoutes registers the raw consume route. Must be called after
// Register so the chi route wins.
func (h *SessionHandler) RegisterChiRoutes(router chi.Router) {
	router.Get("/session/consume", h.handleConsume)
}

// StartSessionInput is the input for starting a session.
type StartSessionInput struct {
	Body struct {
		Receiver string `json:"receiver,omitempty" doc:"Receiver name; empty picks the highest-priority free receiver"`
	}
}

// StartSessionOutput is the output for starting a session.
type StartSessionOutput struct {
	Body struct {
		Success  bool   `json:"success"`
		Receiver string `json:"receiver"`
	}
}

// StartSession claims a receiver for the session workflow.
func (h *SessionHandler) StartSession(ctx context.Context, input *StartSessionInput) (*StartSessionOutput, error) {
	name := input.Body.Receiver

	var (
		receiver *pool.Receiver
		err      error
	)
	if name != "" {
		receiver, err = h.manager.Start(name)
	} else {
		receiver, err = h.startAny()
	}
	if err != nil {
		switch {
		case errors.Is(err, pool.ErrUnknownReceiver):
			return nil, huma.Error404NotFound(err.Error())
		case errors.Is(err, session.ErrAlreadySessioned), errors.Is(err, session.ErrAlreadyInUse):
			return nil, huma.Error409Conflict(err.Error())
		case errors.Is(err, errNoFreeReceiver):
			return nil, huma.Error503ServiceUnavailable(err.Error())
		default:
			return nil, huma.Error500InternalServerError("failed to start session", err)
		}
	}

	resp := &StartSessionOutput{}
	resp.Body.Success = true
	resp.Body.Receiver = receiver.Name
	return resp, nil
}

var errNoFreeReceiver = errors.New("no free receiver available")

// startAny claims the best free receiver. Racing starts resolve inside
// the pool claim; losing a candidate just moves on to the next one. The
// snapshot is priority ordered.
func (h *SessionHandler) startAny() (*pool.Receiver, error) {
	for _, st := range h.pool.Snapshot() {
		if st.Allocated || st.Sessioned {
			continue
		}
		receiver, err := h.manager.Start(st.Name)
		if err == nil {
			return receiver, nil
		}
	}
	return nil, errNoFreeReceiver
}

// CommitSessionInput is the input for committing a session.
type CommitSessionInput struct {
	Body struct {
		Receiver        string `json:"receiver" doc:"Receiver with the open session"`
		Record          bool   `json:"record,omitempty" doc:"Capture the source to disk instead of waiting for a consume"`
		DurationSeconds int    `json:"duration_seconds,omitempty" doc:"Capture length; required when record is set"`
		Title           string `json:"title,omitempty" doc:"Program title for the recordings catalog"`
	}
}

// CommitSessionOutput is the output for committing a session.
type CommitSessionOutput struct {
	Body struct {
		Success   bool   `json:"success"`
		Receiver  string `json:"receiver"`
		Recording bool   `json:"recording"`
	}
}

// CommitSession marks the session ready for a consume or hands it to the
// recorder.
func (h *SessionHandler) CommitSession(ctx context.Context, input *CommitSessionInput) (*CommitSessionOutput, error) {
	record := input.Body.Record
	duration := time.Duration(input.Body.DurationSeconds) * time.Second

	err := h.manager.Commit(input.Body.Receiver, record, duration, input.Body.Title)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return nil, huma.Error409Conflict(err.Error())
		}
		return nil, huma.Error500InternalServerError("failed to commit session", err)
	}

	resp := &CommitSessionOutput{}
	resp.Body.Success = true
	resp.Body.Receiver = input.Body.Receiver
	resp.Body.Recording = record && duration > 0
	return resp, nil
}

// StopSessionInput is the input for stopping a session.
type StopSessionInput struct {
	Body struct {
		Receiver string `json:"receiver" doc:"Receiver to release"`
	}
}

// StopSessionOutput is the output for stopping a session.
type StopSessionOutput struct {
	Body struct {
		Success  bool   `json:"success"`
		Receiver string `json:"receiver"`
	}
}

// StopSession releases the receiver whatever state the session is in.
func (h *SessionHandler) StopSession(ctx context.Context, input *StopSessionInput) (*StopSessionOutput, error) {
	if err := h.manager.Stop(input.Body.Receiver); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}

	resp := &StopSessionOutput{}
	resp.Body.Success = true
	resp.Body.Receiver = input.Body.Receiver
	return resp, nil
}

// ListSessionsInput is the input for listing sessions.
type ListSessionsInput struct{}

// ListSessionsOutput is the output for listing sessions.
type ListSessionsOutput struct {
	Body struct {
		Success  bool             `json:"success"`
		Sessions []session.Status `json:"sessions"`
	}
}

// ListSessions returns the open sessions.
func (h *SessionHandler) ListSessions(ctx context.Context, input *ListSessionsInput) (*ListSessionsOutput, error) {
	resp := &ListSessionsOutput{}
	resp.Body.Success = true
	resp.Body.Sessions = h.manager.Sessions()
	return resp, nil
}

// handleConsume streams the pre-tuned receiver claimed from a committed
// session. No preroll: the device is already settled on the content, that
// being the point of the workflow.
func (h *SessionHandler) handleConsume(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("receiver")

	receiver, err := h.manager.Consume(name)
	if err != nil {
		h.metrics.IncStreamRequest(metrics.OutcomeNotReady)
		http.Error(w, "no committed session ready", http.StatusNotFound)
		return
	}

	handle := h.coord.Open(receiver.Source, modeFor(receiver, h.cfg, h.logger), 0, receiver.Name, func() {
		h.pool.Release(receiver.Name)
	})
	defer handle.Release()

	setStreamHeaders(w, receiver.Name, string(handle.Mode))
	h.metrics.IncStreamRequest(metrics.OutcomeStarted)

	_ = handle.Stream(r.Context(), w)
	h.metrics.AddStreamBytes(handle.BytesWritten())
}
