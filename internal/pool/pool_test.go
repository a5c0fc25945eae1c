package pool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/recast/internal/config"
	"github.com/jmylchreest/recast/internal/ecp"
	"github.com/jmylchreest/recast/internal/keepalive"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSessions implements the Sessions view with a plain map.
type fakeSessions struct {
	mu    sync.Mutex
	names map[string]bool
	drops []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{names: make(map[string]bool)}
}

func (f *fakeSessions) Sessioned(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.names[name]
}

func (f *fakeSessions) Drop(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.names, name)
	f.drops = append(f.drops, name)
}

func (f *fakeSessions) set(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names[name] = true
}

func (f *fakeSessions) dropped(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.drops {
		if n == name {
			return true
		}
	}
	return false
}

// controlDevice fakes the device-control endpoint shared by all test
// receivers and counts Home keypresses.
type controlDevice struct {
	mu    sync.Mutex
	homes int
	fail  bool
}

func (d *controlDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if r.URL.Path == "/keypress/Home" {
		d.homes++
	}
	w.WriteHeader(http.StatusOK)
}

func (d *controlDevice) homeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.homes
}

func (d *controlDevice) setFail(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = fail
}

func spec(name string, priority int, control string) config.ReceiverSpec {
	return config.ReceiverSpec{
		Name:     name,
		Control:  control,
		Source:   "http://encoder.local/" + name,
		Priority: priority,
	}
}

func newTestPool(t *testing.T, specs ...config.ReceiverSpec) (*Pool, *fakeSessions, *keepalive.Manager, *controlDevice) {
	t.Helper()
	device := &controlDevice{}
	server := httptest.NewServer(device)
	t.Cleanup(server.Close)

	for i := range specs {
		if specs[i].Control == "" {
			specs[i].Control = server.Listener.Addr().String()
		}
	}

	sessions := newFakeSessions()
	fleet := ecp.NewFleet(discardLogger())
	ka := keepalive.NewManager(fleet, time.Second, discardLogger())
	p := New(specs, sessions, ka, fleet, discardLogger())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Shutdown(ctx); err != nil {
			t.Errorf("pool shutdown: %v", err)
		}
	})
	return p, sessions, ka, device
}

func shutdown(t *testing.T, p *Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("pool shutdown: %v", err)
	}
}

func TestPool_AllocatePriorityOrder(t *testing.T) {
	p, _, _, device := newTestPool(t, spec("a", 1, ""), spec("b", 2, ""))

	first, ok := p.Allocate()
	if !ok || first.Name != "a" {
		t.Fatalf("first allocation = %v, %v; want receiver a", first, ok)
	}
	second, ok := p.Allocate()
	if !ok || second.Name != "b" {
		t.Fatalf("second allocation = %v, %v; want receiver b", second, ok)
	}
	if r, ok := p.Allocate(); ok {
		t.Fatalf("third allocation returned %s from an exhausted pool", r.Name)
	}

	p.Release("a")
	again, ok := p.Allocate()
	if !ok || again.Name != "a" {
		t.Fatalf("allocation after release = %v, %v; want receiver a", again, ok)
	}

	shutdown(t, p)
	if got := device.homeCount(); got != 1 {
		t.Errorf("home keypresses = %d, want 1", got)
	}
}

func TestPool_AllocateConcurrent(t *testing.T) {
	p, _, _, _ := newTestPool(t, spec("a", 1, ""), spec("b", 2, ""), spec("c", 3, ""))

	const workers = 32
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		names []string
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if r, ok := p.Allocate(); ok {
				mu.Lock()
				names = append(names, r.Name)
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(names) != 3 {
		t.Fatalf("got %d successful allocations, want exactly 3", len(names))
	}
	seen := make(map[string]bool)
	for _, name := range names {
		if seen[name] {
			t.Fatalf("receiver %s allocated twice", name)
		}
		seen[name] = true
	}
}

func TestPool_ReleaseIdempotent(t *testing.T) {
	p, _, _, device := newTestPool(t, spec("a", 1, ""))

	if _, ok := p.Allocate(); !ok {
		t.Fatal("allocate failed on a fresh pool")
	}
	p.Release("a")
	p.Release("a")
	p.Release("a")

	if _, ok := p.Allocate(); !ok {
		t.Fatal("receiver not free after repeated release")
	}

	// Concurrent releases after a single allocation free it exactly once.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Release("a")
		}()
	}
	wg.Wait()

	if _, ok := p.Allocate(); !ok {
		t.Fatal("receiver not free after concurrent releases")
	}
	p.Release("a")

	shutdown(t, p)
	if got := device.homeCount(); got != 3 {
		t.Errorf("home keypresses = %d, want 3 (one per allocated-to-free transition)", got)
	}
}

func TestPool_ReleaseNeverAllocated(t *testing.T) {
	p, _, _, device := newTestPool(t, spec("a", 1, ""))

	p.Release("a")     // free receiver: no-op
	p.Release("ghost") // unknown receiver: logged, no panic

	shutdown(t, p)
	if got := device.homeCount(); got != 0 {
		t.Errorf("home keypresses = %d, want 0", got)
	}
}

func TestPool_AllocateSkipsSessioned(t *testing.T) {
	p, sessions, _, _ := newTestPool(t, spec("a", 1, ""), spec("b", 2, ""))

	sessions.set("a")
	r, ok := p.Allocate()
	if !ok || r.Name != "b" {
		t.Fatalf("allocation = %v, %v; want receiver b while a is sessioned", r, ok)
	}
	if _, ok := p.Allocate(); ok {
		t.Fatal("allocated a sessioned receiver")
	}
}

func TestPool_Claim(t *testing.T) {
	p, _, _, _ := newTestPool(t, spec("a", 1, ""), spec("b", 2, ""))

	r, err := p.Claim("b")
	if err != nil {
		t.Fatalf("claim b: %v", err)
	}
	if r.Name != "b" {
		t.Fatalf("claimed %s, want b", r.Name)
	}

	if _, err := p.Claim("b"); !errors.Is(err, ErrAlreadyAllocated) {
		t.Fatalf("second claim error = %v, want ErrAlreadyAllocated", err)
	}
	if _, err := p.Claim("ghost"); !errors.Is(err, ErrUnknownReceiver) {
		t.Fatalf("claim of unknown receiver = %v, want ErrUnknownReceiver", err)
	}

	// Allocate must skip the claimed receiver.
	other, ok := p.Allocate()
	if !ok || other.Name != "a" {
		t.Fatalf("allocation = %v, %v; want receiver a", other, ok)
	}
}

func TestPool_ReleaseStopsKeepAliveAndDropsSession(t *testing.T) {
	p, sessions, ka, device := newTestPool(t, spec("a", 1, ""))

	r, err := p.Claim("a")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	sessions.set("a")
	ka.Start("a", r.Control, "Up", 20*time.Millisecond)

	p.Release("a")

	if ka.Active("a") {
		t.Error("keep-alive task still active after release")
	}
	if sessions.Sessioned("a") {
		t.Error("session entry survived release")
	}
	if !sessions.dropped("a") {
		t.Error("release did not drop the session entry")
	}
	if _, ok := p.Allocate(); !ok {
		t.Error("receiver not free after release")
	}

	p.Release("a")
	shutdown(t, p)
	if got := device.homeCount(); got != 2 {
		t.Errorf("home keypresses = %d, want 2", got)
	}
}

func TestPool_HomeFailureDoesNotAffectRelease(t *testing.T) {
	p, _, _, device := newTestPool(t, spec("a", 1, ""))
	device.setFail(true)

	if _, ok := p.Allocate(); !ok {
		t.Fatal("allocate failed")
	}
	p.Release("a")

	if _, ok := p.Allocate(); !ok {
		t.Error("receiver not free after release with failing device")
	}
}

func TestPool_Reload(t *testing.T) {
	p, sessions, ka, _ := newTestPool(t, spec("a", 1, ""), spec("b", 2, ""))

	ra, _ := p.Allocate()
	ka.Start("a", ra.Control, "Up", 20*time.Millisecond)
	sessions.set("b")

	p.Reload([]config.ReceiverSpec{spec("c", 1, "10.0.0.9"), spec("d", 2, "10.0.0.10")})

	if ka.Active("a") {
		t.Error("keep-alive task survived reload")
	}
	if !sessions.dropped("a") || !sessions.dropped("b") {
		t.Error("reload did not drop session entries for the old table")
	}

	snapshot := p.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("snapshot has %d receivers, want 2", len(snapshot))
	}
	for _, s := range snapshot {
		if s.Allocated || s.Sessioned || s.KeepAlive {
			t.Errorf("receiver %s not reset by reload: %+v", s.Name, s)
		}
	}

	r, ok := p.Allocate()
	if !ok || r.Name != "c" {
		t.Fatalf("allocation after reload = %v, %v; want receiver c", r, ok)
	}

	// Release of a receiver from the old table is a logged no-op.
	p.Release("a")
}

func TestPool_Snapshot(t *testing.T) {
	p, sessions, _, _ := newTestPool(t, spec("b", 2, ""), spec("a", 1, ""))

	r, _ := p.Allocate()
	if r.Name != "a" {
		t.Fatalf("allocated %s, want a (lowest priority value first)", r.Name)
	}
	sessions.set("a")

	snapshot := p.Snapshot()
	if snapshot[0].Name != "a" || snapshot[1].Name != "b" {
		t.Fatalf("snapshot order = %s, %s; want a, b", snapshot[0].Name, snapshot[1].Name)
	}
	if !snapshot[0].Allocated || !snapshot[0].Sessioned {
		t.Errorf("receiver a state = %+v, want allocated and sessioned", snapshot[0])
	}
	if snapshot[0].AllocatedAt == nil {
		t.Error("allocated receiver has no allocation timestamp")
	}
	if snapshot[1].Allocated || snapshot[1].AllocatedAt != nil {
		t.Errorf("receiver b state = %+v, want free", snapshot[1])
	}

	// The snapshot is a copy; mutating it does not touch the pool.
	snapshot[1].Allocated = true
	if again := p.Snapshot(); again[1].Allocated {
		t.Error("snapshot mutation leaked into the pool")
	}
}

func TestPool_DefaultPriority(t *testing.T) {
	p, _, _, _ := newTestPool(t, spec("unranked", 0, ""), spec("ranked", 1, ""))

	snapshot := p.Snapshot()
	if snapshot[0].Name != "ranked" || snapshot[0].Priority != 1 {
		t.Fatalf("first receiver = %+v, want ranked with priority 1", snapshot[0])
	}
	if snapshot[1].Name != "unranked" || snapshot[1].Priority != config.DefaultPriority {
		t.Fatalf("second receiver = %+v, want unranked with default priority", snapshot[1])
	}
}

func TestPool_SizeAndHas(t *testing.T) {
	p, _, _, _ := newTestPool(t, spec("a", 1, ""), spec("b", 2, ""))

	if got := p.Size(); got != 2 {
		t.Errorf("size = %d, want 2", got)
	}
	if !p.Has("a") || p.Has("ghost") {
		t.Error("Has answered wrong for a configured or unknown receiver")
	}
}
