package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/jmylchreest/recast/internal/pool"
	"github.com/jmylchreest/recast/internal/recorder"
	"github.com/jmylchreest/recast/internal/session"
	"github.com/jmylchreest/recast/internal/stream"
	"github.com/jmylchreest/recast/internal/version"
	"github.com/jmylchreest/recast/pkg/format"
)

// SessionLister reports the open sessions.
type SessionLister interface {
	Sessions() []session.Status
}

// StreamLister reports the active streams.
type StreamLister interface {
	Streams() []stream.Status
}

// RecordingLister reports the captures currently running.
type RecordingLister interface {
	Active() []recorder.Status
}

// StatusHandler serves the operational overview: every receiver with its
// allocation and session state, the active streams and captures, and
// process-level system stats.
type StatusHandler struct {
	pool       *pool.Pool
	sessions   SessionLister
	streams    StreamLister
	recordings RecordingLister
	startTime  time.Time
}

// NewStatusHandler creates the status handler. The recordings lister may
// be nil when no recorder is configured.
func NewStatusHandler(p *pool.Pool, sessions SessionLister, streams StreamLister, recordings RecordingLister) *StatusHandler {
	return &StatusHandler{
		pool:       p,
		sessions:   sessions,
		streams:    streams,
		recordings: recordings,
		startTime:  time.Now(),
	}
}

// SystemInfo summarizes host load and memory.
type SystemInfo struct {
	Cores             int     `json:"cores"`
	Load1Min          float64 `json:"load_1m"`
	Load5Min          float64 `json:"load_5m"`
	Load15Min         float64 `json:"load_15m"`
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	UsedMemoryMB      float64 `json:"used_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
	ProcessMemoryMB   float64 `json:"process_memory_mb"`
	MemorySummary     string  `json:"memory_summary,omitempty"`
	Goroutines        int     `json:"goroutines"`
}

// StatusInput is the input for the status endpoint.
type StatusInput struct{}

// StatusOutput is the output for the status endpoint.
type StatusOutput struct {
	Body struct {
		Receivers     []pool.Status     `json:"receivers"`
		Sessions      []session.Status  `json:"sessions"`
		Streams       []stream.Status   `json:"streams"`
		Recordings    []recorder.Status `json:"recordings"`
		System        SystemInfo        `json:"system"`
		Version       string            `json:"version"`
		Uptime        string            `json:"uptime"`
		UptimeSeconds float64           `json:"uptime_seconds"`
	}
}

// Register registers the status route with the API.
func (h *StatusHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getStatus",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Service status",
		Description: "Returns every receiver with its allocation, session, and keep-alive state, plus active streams, running captures, and host metrics.",
		Tags:        []string{"System"},
	}, h.GetStatus)
}

// GetStatus returns the operational overview.
func (h *StatusHandler) GetStatus(ctx context.Context, input *StatusInput) (*StatusOutput, error) {
	uptime := time.Since(h.startTime)

	resp := &StatusOutput{}
	resp.Body.Receivers = h.pool.Snapshot()
	resp.Body.Sessions = h.sessions.Sessions()
	resp.Body.Streams = h.streams.Streams()
	if h.recordings != nil {
		resp.Body.Recordings = h.recordings.Active()
	}
	resp.Body.System = collectSystemInfo()
	resp.Body.Version = version.Version
	resp.Body.Uptime = format.Uptime(uptime)
	resp.Body.UptimeSeconds = uptime.Seconds()
	return resp, nil
}

// collectSystemInfo gathers host load and memory. Every probe is best
// effort; a failed one leaves zeros rather than failing the endpoint.
func collectSystemInfo() SystemInfo {
	info := SystemInfo{
		Cores:      runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}

	if loadAvg, err := load.Avg(); err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
	}

	if vmStat, err := mem.VirtualMemory(); err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
		info.MemorySummary = format.Bytes(int64(vmStat.Used)) + " of " +
			format.Bytes(int64(vmStat.Total)) + " (" + format.Percent(vmStat.UsedPercent) + ")"
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
			info.ProcessMemoryMB = float64(memInfo.RSS) / 1024 / 1024
		}
	}

	return info
}
