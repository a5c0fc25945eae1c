package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/recast/internal/database"
	"github.com/jmylchreest/recast/internal/version"
)

// HealthHandler answers liveness checks.
type HealthHandler struct {
	db        *database.DB
	startTime time.Time
}

// NewHealthHandler creates the handler, pinning the process start time.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{startTime: time.Now()}
}

// WithDB sets the recordings catalog connection for health checks.
func (h *HealthHandler) WithDB(db *database.DB) *HealthHandler {
	h.db = db
	return h
}

// DatabaseHealth reports catalog connectivity.
type DatabaseHealth struct {
	Status         string  `json:"status"`
	Driver         string  `json:"driver,omitempty"`
	ResponseTimeMS float64 `json:"response_time_ms,omitempty"`
	OpenConns      int     `json:"open_conns,omitempty"`
}

// HealthInput is empty; the check takes no parameters.
type HealthInput struct{}

// HealthOutput carries the liveness report.
type HealthOutput struct {
	Body struct {
		Status        string         `json:"status"`
		Timestamp     string         `json:"timestamp"`
		Version       string         `json:"version"`
		Uptime        string         `json:"uptime"`
		UptimeSeconds float64        `json:"uptime_seconds"`
		Database      DatabaseHealth `json:"database"`
	}
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health check",
		Description: "Returns liveness and catalog connectivity",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth reports liveness, uptime, and catalog connectivity.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	uptime := time.Since(h.startTime)

	resp := &HealthOutput{}
	resp.Body.Status = "ok"
	resp.Body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	resp.Body.Version = version.Version
	resp.Body.Uptime = uptime.Round(time.Second).String()
	resp.Body.UptimeSeconds = uptime.Seconds()
	resp.Body.Database = h.databaseHealth(ctx)
	return resp, nil
}

func (h *HealthHandler) databaseHealth(ctx context.Context) DatabaseHealth {
	if h.db == nil {
		return DatabaseHealth{Status: "disabled"}
	}

	begin := time.Now()
	err := h.db.Ping(ctx)

	health := DatabaseHealth{
		Driver:         h.db.Driver(),
		ResponseTimeMS: float64(time.Since(begin).Microseconds()) / 1000,
	}
	if err != nil {
		health.Status = "error"
		return health
	}

	health.Status = "ok"
	if stats, err := h.db.Stats(); err == nil {
		health.OpenConns = stats.OpenConnections
	}
	return health
}
