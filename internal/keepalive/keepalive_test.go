package keepalive

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jmylchreest/recast/internal/ecp"
)

// keypressRecorder fakes a device control endpoint and records every key it
// receives.
type keypressRecorder struct {
	mu   sync.Mutex
	keys []string
}

func (k *keypressRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if key, ok := strings.CutPrefix(r.URL.Path, "/keypress/"); ok {
		k.mu.Lock()
		k.keys = append(k.keys, key)
		k.mu.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

func (k *keypressRecorder) count() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.keys)
}

func (k *keypressRecorder) last() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.keys) == 0 {
		return ""
	}
	return k.keys[len(k.keys)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testManager() *Manager {
	return NewManager(ecp.NewFleet(discardLogger()), time.Second, discardLogger())
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestManager_RenewsAtInterval(t *testing.T) {
	device := &keypressRecorder{}
	server := httptest.NewServer(device)
	m := testManager()

	m.Start("living-room", server.Listener.Addr().String(), "Up", 20*time.Millisecond)
	if !m.Active("living-room") {
		t.Fatal("expected an active keep-alive task after Start")
	}

	waitFor(t, 2*time.Second, func() bool { return device.count() >= 3 })
	if got := device.last(); got != "Up" {
		t.Errorf("expected renewal key Up, got %q", got)
	}

	m.Stop("living-room")
	if m.Active("living-room") {
		t.Error("task still active after Stop")
	}

	// No renewal may be issued once Stop has returned.
	frozen := device.count()
	time.Sleep(100 * time.Millisecond)
	if got := device.count(); got != frozen {
		t.Errorf("renewal issued after Stop: %d before, %d after", frozen, got)
	}

	server.Close()
	goleak.VerifyNone(t)
}

func TestManager_StopWithoutTask(t *testing.T) {
	m := testManager()
	m.Stop("nobody") // must not panic or block
	if m.Active("nobody") {
		t.Error("Active reported a task that was never started")
	}
}

func TestManager_IgnoresInvalidRequests(t *testing.T) {
	m := testManager()

	m.Start("a", "127.0.0.1:1", "", time.Second)
	if m.Active("a") {
		t.Error("task started despite empty key")
	}

	m.Start("b", "127.0.0.1:1", "Up", 0)
	if m.Active("b") {
		t.Error("task started despite zero interval")
	}
}

func TestManager_ReplacesExistingTask(t *testing.T) {
	device := &keypressRecorder{}
	server := httptest.NewServer(device)
	m := testManager()

	m.Start("den", server.Listener.Addr().String(), "Up", 20*time.Millisecond)
	m.Start("den", server.Listener.Addr().String(), "Info", 20*time.Millisecond)
	if !m.Active("den") {
		t.Fatal("expected an active task after replacement")
	}

	waitFor(t, 2*time.Second, func() bool { return device.last() == "Info" })

	m.Stop("den")
	frozen := device.count()
	time.Sleep(100 * time.Millisecond)
	if got := device.count(); got != frozen {
		t.Errorf("renewal issued after Stop: %d before, %d after", frozen, got)
	}

	server.Close()
	goleak.VerifyNone(t)
}

func TestManager_StopAll(t *testing.T) {
	device := &keypressRecorder{}
	server := httptest.NewServer(device)
	m := testManager()

	addr := server.Listener.Addr().String()
	m.Start("one", addr, "Up", 20*time.Millisecond)
	m.Start("two", addr, "Up", 20*time.Millisecond)
	m.Start("three", addr, "Up", 20*time.Millisecond)

	m.StopAll()
	for _, name := range []string{"one", "two", "three"} {
		if m.Active(name) {
			t.Errorf("task %q still active after StopAll", name)
		}
	}

	frozen := device.count()
	time.Sleep(100 * time.Millisecond)
	if got := device.count(); got != frozen {
		t.Errorf("renewal issued after StopAll: %d before, %d after", frozen, got)
	}

	server.Close()
	goleak.VerifyNone(t)
}

func TestManager_ConcurrentStartStop(t *testing.T) {
	device := &keypressRecorder{}
	server := httptest.NewServer(device)
	m := testManager()
	addr := server.Listener.Addr().String()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				m.Start("shared", addr, "Up", 10*time.Millisecond)
				m.Stop("shared")
			}
		}()
	}
	wg.Wait()

	m.StopAll()
	server.Close()
	goleak.VerifyNone(t)
}
