// Package stream moves MPEG-TS bytes from an encoder source to an HTTP
// client. It owns the pre-roll filler, the proxy/remux/reencode
// pipelines, and the guarantee that every opened handle releases its
// receiver exactly once no matter how the transfer ends.
package stream

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmylchreest/recast/internal/config"
	"github.com/jmylchreest/recast/internal/ffmpeg"
)

// Mode selects how source bytes reach the client.
type Mode string

const (
	// ModeProxy copies the encoder's output verbatim.
	ModeProxy Mode = "proxy"
	// ModeRemux rewraps the container without touching codecs.
	ModeRemux Mode = "remux"
	// ModeReencode copies video and re-encodes audio to AAC.
	ModeReencode Mode = "reencode"
)

// ParseMode validates a pipeline mode from configuration.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case ModeProxy:
		return ModeProxy, nil
	case ModeRemux:
		return ModeRemux, nil
	case ModeReencode:
		return ModeReencode, nil
	}
	return "", fmt.Errorf("unknown pipeline mode %q", s)
}

// Status describes one active stream for the status surface.
type Status struct {
	ID           string    `json:"id"`
	Receiver     string    `json:"receiver"`
	Mode         Mode      `json:"mode"`
	Source       string    `json:"source"`
	StartedAt    time.Time `json:"started_at"`
	BytesWritten int64     `json:"bytes_written"`
}

// defaultChunkSize is used when configuration does not set one.
const defaultChunkSize = 64 * 1024

// Coordinator opens streaming handles and tracks the active set.
type Coordinator struct {
	cfg       config.StreamingConfig
	ffmpegBin string
	retry     ffmpeg.RetryConfig
	client    *http.Client
	logger    *slog.Logger

	mu     sync.RWMutex
	active map[string]*Handle
}

// NewCoordinator creates a coordinator. ffmpegBin is the resolved
// binary path; it is only exercised by the remux and reencode modes.
func NewCoordinator(cfg config.StreamingConfig, ffmpegBin string, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	retry := ffmpeg.DefaultRetryConfig()
	if cfg.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.RetryAttempts
	}
	if cfg.RetryDelay > 0 {
		retry.InitialDelay = cfg.RetryDelay
	}
	if cfg.RetryMaxDelay > 0 {
		retry.MaxDelay = cfg.RetryMaxDelay
	}

	return &Coordinator{
		cfg:       cfg,
		ffmpegBin: ffmpegBin,
		retry:     retry,
		client:    newStreamingClient(),
		logger:    logger,
		active:    make(map[string]*Handle),
	}
}

// Open registers a handle bound to a receiver. The release function
// runs exactly once when the handle terminates, on every path.
func (c *Coordinator) Open(source string, mode Mode, preroll time.Duration, receiver string, release func()) *Handle {
	h := &Handle{
		ID:        uuid.NewString(),
		Receiver:  receiver,
		Source:    source,
		Mode:      mode,
		Preroll:   preroll,
		StartedAt: time.Now(),
		coord:     c,
		release:   release,
	}

	c.mu.Lock()
	c.active[h.ID] = h
	c.mu.Unlock()

	c.logger.Info("stream opened",
		"id", h.ID,
		"receiver", receiver,
		"mode", mode,
		"source", redactURL(source),
		"preroll", preroll)

	return h
}

// Streams returns the active handles, oldest first.
func (c *Coordinator) Streams() []Status {
	c.mu.RLock()
	handles := make([]*Handle, 0, len(c.active))
	for _, h := range c.active {
		handles = append(handles, h)
	}
	c.mu.RUnlock()

	sort.Slice(handles, func(i, j int) bool {
		if handles[i].StartedAt.Equal(handles[j].StartedAt) {
			return handles[i].ID < handles[j].ID
		}
		return handles[i].StartedAt.Before(handles[j].StartedAt)
	})

	out := make([]Status, 0, len(handles))
	for _, h := range handles {
		out = append(out, Status{
			ID:           h.ID,
			Receiver:     h.Receiver,
			Mode:         h.Mode,
			Source:       redactURL(h.Source),
			StartedAt:    h.StartedAt,
			BytesWritten: h.BytesWritten(),
		})
	}
	return out
}

func (c *Coordinator) drop(id string) {
	c.mu.Lock()
	delete(c.active, id)
	c.mu.Unlock()
}

func (c *Coordinator) chunkSize() int {
	if n := c.cfg.ChunkSize.Bytes(); n > 0 {
		return int(n)
	}
	return defaultChunkSize
}

// newStreamingClient builds the client used to proxy sources. No
// Timeout: streaming connections run indefinitely. Dial and header
// timeouts still bound how long a dead source can stall an open.
func newStreamingClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// redactURL strips credentials for logging. Encoder URLs may embed
// basic-auth userinfo.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
