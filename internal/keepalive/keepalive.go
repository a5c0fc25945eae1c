// Package keepalive re-issues a periodic keypress on behalf of channels
// whose app drops to a screensaver or "are you still watching" prompt when
// the remote goes quiet. One renewal goroutine runs per receiver, keyed by
// receiver name; the pool stops the task before it frees the receiver, so a
// renewal keypress can never land on a receiver someone else has claimed.
package keepalive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/recast/internal/ecp"
)

// DefaultJoinTimeout bounds how long Stop waits for a renewal goroutine to
// acknowledge cancellation.
const DefaultJoinTimeout = 5 * time.Second

// Manager owns the renewal goroutines.
type Manager struct {
	fleet       *ecp.Fleet
	joinTimeout time.Duration
	logger      *slog.Logger

	mu    sync.Mutex
	tasks map[string]*task
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a keep-alive manager issuing keypresses through fleet.
// A non-positive joinTimeout falls back to DefaultJoinTimeout.
func NewManager(fleet *ecp.Fleet, joinTimeout time.Duration, logger *slog.Logger) *Manager {
	if joinTimeout <= 0 {
		joinTimeout = DefaultJoinTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		fleet:       fleet,
		joinTimeout: joinTimeout,
		logger:      logger,
		tasks:       make(map[string]*task),
	}
}

// Start spawns a renewal goroutine for the named receiver, pressing key on
// the device at control every interval. An existing task for the same name
// is replaced. A missing key or non-positive interval is ignored with a
// warning rather than rejected: keep-alive is advisory and must never block
// a tune.
func (m *Manager) Start(name, control, key string, interval time.Duration) {
	if key == "" || interval <= 0 {
		m.logger.Warn("ignoring keep-alive request with missing key or interval",
			"receiver", name, "key", key, "interval", interval)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	old := m.tasks[name]
	m.tasks[name] = t
	m.mu.Unlock()

	if old != nil {
		m.logger.Warn("replacing existing keep-alive task", "receiver", name)
		m.stopTask(name, old)
	}

	client := m.fleet.Client(control)
	go m.run(ctx, t, client, name, key, interval)

	m.logger.Debug("keep-alive started",
		"receiver", name, "key", key, "interval", interval)
}

func (m *Manager) run(ctx context.Context, t *task, client *ecp.Client, name, key string, interval time.Duration) {
	defer close(t.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Keypress(ctx, key); err != nil {
				m.logger.Warn("keep-alive keypress failed",
					"receiver", name, "key", key, "error", err)
			}
		}
	}
}

// Stop cancels the renewal goroutine for the named receiver and waits for
// it to exit, bounded by the join timeout. Once Stop returns no further
// keypress is issued for the task. Stopping a receiver without a task is a
// no-op.
func (m *Manager) Stop(name string) {
	m.mu.Lock()
	t, ok := m.tasks[name]
	if ok {
		delete(m.tasks, name)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	m.stopTask(name, t)
	m.logger.Debug("keep-alive stopped", "receiver", name)
}

// StopAll cancels every renewal goroutine. Used on lineup reload and
// shutdown; the join timeout bounds the total wait, not each task.
func (m *Manager) StopAll() {
	m.mu.Lock()
	tasks := m.tasks
	m.tasks = make(map[string]*task)
	m.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	deadline := time.Now().Add(m.joinTimeout)
	for name, t := range tasks {
		if !joinUntil(t.done, deadline) {
			m.logger.Warn("keep-alive task did not exit within join timeout",
				"receiver", name)
		}
	}
}

// Active reports whether a renewal task is running for the named receiver.
func (m *Manager) Active(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[name]
	return ok
}

func (m *Manager) stopTask(name string, t *task) {
	t.cancel()
	if !joinUntil(t.done, time.Now().Add(m.joinTimeout)) {
		m.logger.Warn("keep-alive task did not exit within join timeout",
			"receiver", name)
	}
}

// joinUntil waits for done to close, giving up at deadline. A cancelled
// keypress in flight aborts almost immediately, so the deadline is rarely
// reached.
func joinUntil(done <-chan struct{}, deadline time.Time) bool {
	wait := time.Until(deadline)
	if wait <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
	select {
	case <-done:
		return true
	case <-time.After(wait):
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}
