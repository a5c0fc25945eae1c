// Package session implements the preview/commit workflow: a client parks a
// receiver, drives the device by hand or through the tuner, then commits
// the result either to a recording or to exactly one live consume.
package session

import (
	"sync"
	"time"

	"github.com/jmylchreest/recast/internal/pool"
)

// Registry tracks which receivers have an open session. The pool consults
// it through the pool.Sessions view; the Manager in this package owns the
// workflow state carried on each entry. Registry methods are leaves in the
// lock order: they never call back into the pool.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	receiver  *pool.Receiver
	startedAt time.Time

	committed       bool
	title           string
	recordingQueued bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Sessioned reports whether the named receiver has an open session.
func (r *Registry) Sessioned(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[name]
	return ok
}

// Drop removes any session entry for the named receiver. Dropping an
// absent entry is a no-op; release calls this unconditionally.
func (r *Registry) Drop(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

var _ pool.Sessions = (*Registry)(nil)
