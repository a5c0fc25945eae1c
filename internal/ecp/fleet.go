package ecp

import (
	"log/slog"
	"sync"
)

// Fleet hands out a cached Client per device address. Reusing clients
// keeps per-device circuit breaker state alive across operations: a
// receiver whose device is unplugged fails fast instead of re-probing on
// every call.
type Fleet struct {
	mu      sync.Mutex
	clients map[string]*Client
	logger  *slog.Logger
	opts    []ClientOption
}

// NewFleet creates an empty fleet. A nil logger falls back to the default.
// Options are applied to every client the fleet creates.
func NewFleet(logger *slog.Logger, opts ...ClientOption) *Fleet {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fleet{
		clients: make(map[string]*Client),
		logger:  logger,
		opts:    opts,
	}
}

// Client returns the client for the device at address, creating one on
// first use. Addresses are normalized first, so "10.0.0.7" and
// "10.0.0.7:8060" share a client.
func (f *Fleet) Client(address string) *Client {
	key := NormalizeAddress(address)

	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[key]; ok {
		return c
	}
	c := NewClient(key, append([]ClientOption{WithLogger(f.logger)}, f.opts...)...)
	f.clients[key] = c
	return c
}

// Reset drops every cached client. Called after a lineup reload so stale
// breaker state does not outlive a device that moved or was replaced.
func (f *Fleet) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients = make(map[string]*Client)
}
