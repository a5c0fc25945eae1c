package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/recast/internal/config"
	"github.com/jmylchreest/recast/internal/ecp"
	"github.com/jmylchreest/recast/internal/keepalive"
	"github.com/jmylchreest/recast/internal/metrics"
	"github.com/jmylchreest/recast/internal/pool"
	"github.com/jmylchreest/recast/internal/session"
	"github.com/jmylchreest/recast/internal/stream"
	"github.com/jmylchreest/recast/internal/tuner"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// statusOf unwraps the HTTP status carried on a huma error.
func statusOf(t *testing.T, err error) int {
	t.Helper()
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	return se.GetStatus()
}

// stubLineup serves a fixed lineup document.
type stubLineup struct {
	lineup *config.Lineup
}

func (s *stubLineup) Current() *config.Lineup { return s.lineup }

// fakeDevice stands in for every receiver's device-control endpoint and
// records the requests it saw.
type fakeDevice struct {
	mu       sync.Mutex
	requests []string
}

func (d *fakeDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	d.mu.Lock()
	d.requests = append(d.requests, path)
	d.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// saw reports whether any recorded request starts with the given path.
func (d *fakeDevice) saw(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.requests {
		if strings.HasPrefix(p, path) {
			return true
		}
	}
	return false
}

// env bundles the receiver-facing wiring the media-route tests share.
type env struct {
	device   *fakeDevice
	registry *session.Registry
	pool     *pool.Pool
	manager  *session.Manager
	coord    *stream.Coordinator
	fleet    *ecp.Fleet
	ka       *keepalive.Manager
	metrics  *metrics.Metrics
	tuner    *tuner.Tuner
}

// newEnv builds a pool over the given specs. Specs without a control
// address share one fake device server.
func newEnv(t *testing.T, specs ...config.ReceiverSpec) *env {
	t.Helper()

	device := &fakeDevice{}
	deviceSrv := httptest.NewServer(device)
	t.Cleanup(deviceSrv.Close)
	for i := range specs {
		if specs[i].Control == "" {
			specs[i].Control = deviceSrv.Listener.Addr().String()
		}
	}

	logger := discardLogger()
	fleet := ecp.NewFleet(logger)
	ka := keepalive.NewManager(fleet, time.Second, logger)
	registry := session.NewRegistry()
	p := pool.New(specs, registry, ka, fleet, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Shutdown(ctx); err != nil {
			t.Errorf("pool shutdown: %v", err)
		}
	})

	return &env{
		device:   device,
		registry: registry,
		pool:     p,
		manager:  session.NewManager(registry, p, nil, logger),
		coord:    stream.NewCoordinator(config.StreamingConfig{Mode: "proxy"}, "", logger),
		fleet:    fleet,
		ka:       ka,
		metrics:  metrics.New(),
		tuner:    tuner.New(config.TuningConfig{}, fleet, tuner.NewRegistry(), logger),
	}
}

func receiverSpec(name string, priority int, source string) config.ReceiverSpec {
	return config.ReceiverSpec{Name: name, Source: source, Priority: priority}
}

// tsSource serves a fixed payload as one finite response.
func tsSource(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// endlessSource streams chunks until the client goes away.
func endlessSource(t *testing.T) *httptest.Server {
	t.Helper()
	chunk := make([]byte, 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		flusher := w.(http.Flusher)
		for {
			if _, err := w.Write(chunk); err != nil {
				return
			}
			flusher.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// waitForFree polls until the named receiver can be claimed again,
// releasing it right away.
func waitForFree(t *testing.T, p *pool.Pool, name string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := p.Claim(name); err == nil {
			p.Release(name)
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("receiver %s not released", name)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
