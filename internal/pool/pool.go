// Package pool tracks which physical receivers are free and hands them out
// in priority order. It is the single authority on allocation state: every
// streaming, session and recording workflow acquires a receiver here and
// gives it back through Release, which carries the teardown guarantees the
// rest of the system relies on.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jmylchreest/recast/internal/config"
	"github.com/jmylchreest/recast/internal/ecp"
	"github.com/jmylchreest/recast/internal/keepalive"
)

// ErrUnknownReceiver is returned when no receiver with the given name is
// configured.
var ErrUnknownReceiver = errors.New("unknown receiver")

// ErrAlreadyAllocated is returned by Claim when the receiver is in use.
var ErrAlreadyAllocated = errors.New("receiver already allocated")

// homeTimeout bounds the best-effort return-home keypress after release.
const homeTimeout = 15 * time.Second

// Sessions is the narrow view of the session registry the pool needs:
// Allocate skips sessioned receivers, Release drops any session entry.
// Lock order is pool then registry, never the reverse.
type Sessions interface {
	Sessioned(name string) bool
	Drop(name string)
}

// Receiver is one physical Roku/encoder pair. Identity fields are immutable
// after construction; allocation state is owned by the pool and only
// touched under its mutex.
type Receiver struct {
	// Name is the stable identifier used in APIs and logs.
	Name string
	// Control is the device-control address.
	Control string
	// Source is the HDMI encoder URL emitting MPEG-TS.
	Source string
	// Priority orders allocation; lower allocates first.
	Priority int
	// Mode overrides the global streaming mode when non-empty.
	Mode string

	allocated   bool
	allocatedAt time.Time
}

// Status is a point-in-time copy of one receiver for status and playlist
// readers.
type Status struct {
	Name        string     `json:"name"`
	Control     string     `json:"control"`
	Source      string     `json:"source"`
	Priority    int        `json:"priority"`
	Mode        string     `json:"mode,omitempty"`
	Allocated   bool       `json:"allocated"`
	AllocatedAt *time.Time `json:"allocated_at,omitempty"`
	Sessioned   bool       `json:"sessioned"`
	KeepAlive   bool       `json:"keep_alive"`
}

// Pool holds the receiver table sorted by priority.
type Pool struct {
	sessions  Sessions
	keepalive *keepalive.Manager
	fleet     *ecp.Fleet
	logger    *slog.Logger

	mu        sync.Mutex
	receivers []*Receiver

	// wg tracks the best-effort return-home goroutines spawned by Release.
	wg sync.WaitGroup
}

// New builds a pool from the configured receiver specs. The sessions view
// must be the same registry the session workflow mutates.
func New(specs []config.ReceiverSpec, sessions Sessions, ka *keepalive.Manager, fleet *ecp.Fleet, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		sessions:  sessions,
		keepalive: ka,
		fleet:     fleet,
		logger:    logger,
		receivers: buildTable(specs),
	}
}

func buildTable(specs []config.ReceiverSpec) []*Receiver {
	receivers := make([]*Receiver, 0, len(specs))
	for _, spec := range specs {
		priority := spec.Priority
		if priority == 0 {
			priority = config.DefaultPriority
		}
		receivers = append(receivers, &Receiver{
			Name:     spec.Name,
			Control:  spec.Control,
			Source:   spec.Source,
			Priority: priority,
			Mode:     spec.Mode,
		})
	}
	sort.SliceStable(receivers, func(i, j int) bool {
		return receivers[i].Priority < receivers[j].Priority
	})
	return receivers
}

// Allocate hands out the highest-priority free receiver. The second return
// is false when every receiver is allocated or sessioned; exhaustion is an
// operational condition for the caller to surface, not an error. Allocate
// never blocks and never hands the same receiver to two callers.
func (p *Pool) Allocate() (*Receiver, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, r := range p.receivers {
		if r.allocated || p.sessions.Sessioned(r.Name) {
			continue
		}
		r.allocated = true
		r.allocatedAt = time.Now()
		p.logger.Debug("receiver allocated", "receiver", r.Name, "priority", r.Priority)
		return r, true
	}
	return nil, false
}

// Claim allocates a specific receiver by name. Used by the session workflow
// where the caller picks the receiver instead of taking the next free one.
func (p *Pool) Claim(name string) (*Receiver, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.lookup(name)
	if r == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownReceiver)
	}
	if r.allocated || p.sessions.Sessioned(name) {
		return nil, fmt.Errorf("%s: %w", name, ErrAlreadyAllocated)
	}
	r.allocated = true
	r.allocatedAt = time.Now()
	p.logger.Debug("receiver claimed", "receiver", name)
	return r, nil
}

// Release returns a receiver to the pool. Safe to call any number of times
// and in any state. The keep-alive task is stopped before anything else so
// no renewal keypress can land once the receiver is free; then any session
// entry is dropped, the receiver is marked free, and a best-effort Home
// keypress sends the device back to its menu on a background goroutine.
func (p *Pool) Release(name string) {
	p.keepalive.Stop(name)
	p.sessions.Drop(name)

	p.mu.Lock()
	r := p.lookup(name)
	if r == nil {
		p.mu.Unlock()
		p.logger.Warn("release for unknown receiver", "receiver", name)
		return
	}
	wasAllocated := r.allocated
	heldFor := time.Since(r.allocatedAt)
	control := r.Control
	r.allocated = false
	r.allocatedAt = time.Time{}
	p.mu.Unlock()

	if !wasAllocated {
		return
	}

	p.logger.Info("receiver released", "receiver", name, "held", heldFor.Round(time.Second))

	p.wg.Add(1)
	go p.returnHome(name, control)
}

// returnHome sends the device back to its menu so the encoder does not keep
// serving stale app output. Failures are logged and never surfaced; the
// release has already completed by the time this runs.
func (p *Pool) returnHome(name, control string) {
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), homeTimeout)
	defer cancel()

	if err := p.fleet.Client(control).Home(ctx); err != nil {
		p.logger.Warn("failed to return receiver home", "receiver", name, "error", err)
	}
}

// Has reports whether a receiver with the given name is configured.
func (p *Pool) Has(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookup(name) != nil
}

// Size returns the number of configured receivers, which is also the
// maximum number of concurrent streams.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.receivers)
}

// Snapshot returns a copy of the receiver table for status and playlist
// readers. The copy is taken under the lock and the session and keep-alive
// flags are filled in afterwards, so the view is eventually consistent and
// readers hold no lock.
func (p *Pool) Snapshot() []Status {
	p.mu.Lock()
	statuses := make([]Status, 0, len(p.receivers))
	for _, r := range p.receivers {
		s := Status{
			Name:      r.Name,
			Control:   r.Control,
			Source:    r.Source,
			Priority:  r.Priority,
			Mode:      r.Mode,
			Allocated: r.allocated,
		}
		if r.allocated {
			at := r.allocatedAt
			s.AllocatedAt = &at
		}
		statuses = append(statuses, s)
	}
	p.mu.Unlock()

	for i := range statuses {
		statuses[i].Sessioned = p.sessions.Sessioned(statuses[i].Name)
		statuses[i].KeepAlive = p.keepalive.Active(statuses[i].Name)
	}
	return statuses
}

// Reload replaces the receiver table from a new set of specs. Every
// keep-alive task is stopped, every session entry dropped, and every
// receiver comes back free. Pipelines already streaming keep running; their
// eventual release resolves against the new table by name.
func (p *Pool) Reload(specs []config.ReceiverSpec) {
	p.keepalive.StopAll()

	p.mu.Lock()
	for _, r := range p.receivers {
		p.sessions.Drop(r.Name)
	}
	p.receivers = buildTable(specs)
	count := len(p.receivers)
	p.mu.Unlock()

	// Drop cached device clients so breaker state does not outlive a
	// device that moved or was replaced.
	p.fleet.Reset()

	p.logger.Info("receiver pool reloaded", "receivers", count)
}

// Shutdown stops all keep-alive tasks and waits for in-flight return-home
// keypresses, bounded by ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.keepalive.StopAll()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// lookup must be called with p.mu held.
func (p *Pool) lookup(name string) *Receiver {
	for _, r := range p.receivers {
		if r.Name == name {
			return r
		}
	}
	return nil
}
