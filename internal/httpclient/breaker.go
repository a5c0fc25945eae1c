package httpclient

import (
	"sync"
	"time"
)

// CircuitState is the breaker's position.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

var stateNames = [...]string{
	CircuitClosed:   "closed",
	CircuitOpen:     "open",
	CircuitHalfOpen: "half-open",
}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreaker trips after maxFailures consecutive failures, denies
// calls for a cooldown, then lets a bounded number of probes through. One
// probe success closes it again; one probe failure reopens it.
type CircuitBreaker struct {
	mu sync.RWMutex

	state       CircuitState
	failures    int
	lastFailure time.Time

	maxFailures int
	cooldown    time.Duration
	maxProbes   int
	probes      int
}

// NewCircuitBreaker builds a closed breaker.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration, maxProbes int) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		maxProbes:   maxProbes,
	}
}

// Allow reports whether a call may proceed, moving an expired open breaker
// into half-open as a side effect.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(b.lastFailure) < b.cooldown {
			return false
		}
		// Cooldown over: this call becomes the first probe.
		b.state = CircuitHalfOpen
		b.probes = 1
		return true
	case CircuitHalfOpen:
		if b.probes >= b.maxProbes {
			return false
		}
		b.probes++
		return true
	}
	return false
}

// RecordSuccess notes a settled call. A half-open success closes the
// breaker.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitHalfOpen {
		b.state = CircuitClosed
	}
	b.failures = 0
}

// RecordFailure notes a failed call. Enough consecutive failures open the
// breaker; any half-open failure reopens it at once.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case CircuitClosed:
		if b.failures >= b.maxFailures {
			b.state = CircuitOpen
		}
	case CircuitHalfOpen:
		b.state = CircuitOpen
	}
}

// State returns the breaker's position.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Reset forces the breaker closed and clears its history.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = CircuitClosed
	b.failures = 0
	b.probes = 0
}
