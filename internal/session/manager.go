package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jmylchreest/recast/internal/pool"
)

// Workflow errors, mapped to conflict and not-found responses by the API
// layer.
var (
	// ErrAlreadyInUse means the receiver is allocated to a live stream.
	ErrAlreadyInUse = errors.New("receiver already in use")
	// ErrAlreadySessioned means a session is already open on the receiver.
	ErrAlreadySessioned = errors.New("session already open")
	// ErrNoSession means no session is open on the receiver.
	ErrNoSession = errors.New("no session open")
	// ErrNotReady means no committed session is available to consume.
	ErrNotReady = errors.New("no committed session")
)

// Recorder starts an asynchronous capture of the receiver's source. Once it
// returns nil the recording workflow owns the receiver and must release it
// when the capture ends.
type Recorder interface {
	Record(receiver *pool.Receiver, duration time.Duration, title string) error
}

// Status describes one open session for the status API.
type Status struct {
	Receiver        string    `json:"receiver"`
	StartedAt       time.Time `json:"started_at"`
	Committed       bool      `json:"committed"`
	RecordingQueued bool      `json:"recording_queued,omitempty"`
	Title           string    `json:"title,omitempty"`
}

// Manager drives session state transitions: none, started, committed, then
// gone again through a consume, a recording hand-off, or a stop. It holds
// no lock of its own; claims are serialized by the pool mutex and entry
// state by the registry mutex, and neither is ever held across a call into
// the other layer.
type Manager struct {
	registry *Registry
	pool     *pool.Pool
	recorder Recorder
	logger   *slog.Logger
}

// NewManager wires the workflow onto a registry and pool. The recorder may
// be nil, in which case commits requesting a recording fail.
func NewManager(registry *Registry, p *pool.Pool, recorder Recorder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: registry,
		pool:     p,
		recorder: recorder,
		logger:   logger,
	}
}

// Start opens a session on the named receiver, claiming it from the pool.
// Live allocations and sessions are mutually exclusive: a receiver serving
// a stream reports ErrAlreadyInUse and a receiver with an open session
// reports ErrAlreadySessioned.
func (m *Manager) Start(name string) (*pool.Receiver, error) {
	if m.registry.Sessioned(name) {
		return nil, fmt.Errorf("%s: %w", name, ErrAlreadySessioned)
	}

	r, err := m.pool.Claim(name)
	if err != nil {
		if errors.Is(err, pool.ErrAlreadyAllocated) {
			// Re-check: the claim may have lost to a racing Start rather
			// than to a live allocation.
			if m.registry.Sessioned(name) {
				return nil, fmt.Errorf("%s: %w", name, ErrAlreadySessioned)
			}
			return nil, fmt.Errorf("%s: %w", name, ErrAlreadyInUse)
		}
		return nil, err
	}

	m.registry.mu.Lock()
	m.registry.entries[name] = &entry{receiver: r, startedAt: time.Now()}
	m.registry.mu.Unlock()

	m.logger.Info("session started", "receiver", name)
	return r, nil
}

// Commit marks the session ready. With record set and a positive duration
// the receiver is handed to the recorder and the session ends when the
// capture releases it; otherwise the session waits for exactly one consume.
func (m *Manager) Commit(name string, record bool, duration time.Duration, title string) error {
	m.registry.mu.Lock()
	ent, ok := m.registry.entries[name]
	if !ok {
		m.registry.mu.Unlock()
		return fmt.Errorf("%s: %w", name, ErrNoSession)
	}
	ent.committed = true
	ent.title = title
	receiver := ent.receiver
	m.registry.mu.Unlock()

	if !record || duration <= 0 {
		m.logger.Info("session committed", "receiver", name)
		return nil
	}

	if m.recorder == nil {
		return fmt.Errorf("session %s requested a recording but no recorder is configured", name)
	}
	if err := m.recorder.Record(receiver, duration, title); err != nil {
		return fmt.Errorf("starting recording: %w", err)
	}

	m.registry.mu.Lock()
	if ent, ok := m.registry.entries[name]; ok {
		ent.recordingQueued = true
	}
	m.registry.mu.Unlock()

	m.logger.Info("session committed to recording",
		"receiver", name, "duration", duration, "title", title)
	return nil
}

// Consume takes the committed session on the named receiver, or on the
// committed receiver with the best priority when name is empty. The entry
// is removed under the registry mutex, so of two racing consumers exactly
// one wins; the pool allocation survives for the caller to stream from and
// eventually release.
func (m *Manager) Consume(name string) (*pool.Receiver, error) {
	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()

	if name != "" {
		ent, ok := m.registry.entries[name]
		if !ok || !ent.committed {
			return nil, fmt.Errorf("%s: %w", name, ErrNotReady)
		}
		delete(m.registry.entries, name)
		m.logger.Info("session consumed", "receiver", name)
		return ent.receiver, nil
	}

	var (
		bestName string
		best     *entry
	)
	for n, ent := range m.registry.entries {
		if !ent.committed {
			continue
		}
		if best == nil || ent.receiver.Priority < best.receiver.Priority ||
			(ent.receiver.Priority == best.receiver.Priority && n < bestName) {
			best, bestName = ent, n
		}
	}
	if best == nil {
		return nil, ErrNotReady
	}
	delete(m.registry.entries, bestName)
	m.logger.Info("session consumed", "receiver", bestName)
	return best.receiver, nil
}

// Stop tears the session down through the standard release path. Safe in
// any state; only a receiver that does not exist at all is an error.
func (m *Manager) Stop(name string) error {
	if !m.pool.Has(name) {
		return fmt.Errorf("%s: %w", name, pool.ErrUnknownReceiver)
	}
	m.pool.Release(name)
	return nil
}

// Sessions returns a snapshot of open sessions ordered by receiver name.
func (m *Manager) Sessions() []Status {
	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()

	statuses := make([]Status, 0, len(m.registry.entries))
	for name, ent := range m.registry.entries {
		statuses = append(statuses, Status{
			Receiver:        name,
			StartedAt:       ent.startedAt,
			Committed:       ent.committed,
			RecordingQueued: ent.recordingQueued,
			Title:           ent.title,
		})
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Receiver < statuses[j].Receiver
	})
	return statuses
}
