// Package breaker implements the per-service three-state circuit breaker
// (C2). All state reads/writes occur under one exclusive section per
// breaker; counters could be atomics but the transition logic needs to see
// several fields consistently together, so a single mutex per service is
// used instead, matching the invariant that "only one state transition may
// be in flight at a time per service" (spec.md §3).
package breaker

import (
	"sync"
	"time"

	"github.com/nexbridge/sidecar/internal/core/domain"
)

const (
	DefaultHalfOpenSuccessThreshold = 3
	DefaultHalfOpenMaxCalls         = 5
	DefaultTimeout                  = 60 * time.Second
)

// Breaker is a single service's circuit-breaker state machine.
type Breaker struct {
	mu sync.Mutex

	service string
	state   domain.CircuitStateName

	failureThreshold int
	successThreshold int
	timeout          time.Duration

	failures    int64
	successes   int64
	lastFailure time.Time

	now func() time.Time

	onTransition func(service, from, to string)
}

// New creates a breaker for one service, defaulting to Closed.
func New(service string, failureThreshold int, onTransition func(service, from, to string)) *Breaker {
	return &Breaker{
		service:          service,
		state:            domain.CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: DefaultHalfOpenSuccessThreshold,
		timeout:          DefaultTimeout,
		now:              time.Now,
		onTransition:     onTransition,
	}
}

func (b *Breaker) transition(to domain.CircuitStateName) {
	from := b.state
	if from == to {
		return // idempotent: no double-logging, no spurious resets
	}
	b.state = to
	if b.onTransition != nil {
		b.onTransition(b.service, from.String(), to.String())
	}
}

// IsOpen is the probe called before each dispatch. In the Open state it
// checks whether timeout has elapsed; if so it transitions to HalfOpen
// (the only way HalfOpen is entered) and admits this one call.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case domain.CircuitOpen:
		if b.now().Sub(b.lastFailure) >= b.timeout {
			b.successes = 0
			b.transition(domain.CircuitHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

// RecordSuccess applies the success-path transition rule for the current
// state.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case domain.CircuitClosed:
		b.failures = 0
	case domain.CircuitHalfOpen:
		b.successes++
		if b.successes >= int64(b.successThreshold) {
			b.failures = 0
			b.successes = 0
			b.transition(domain.CircuitClosed)
		}
	case domain.CircuitOpen:
		// A success can't be observed while rejecting dispatch; ignore.
	}
}

// RecordFailure applies the failure-path transition rule for the current
// state.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()

	switch b.state {
	case domain.CircuitClosed:
		b.failures++
		if b.failures >= int64(b.failureThreshold) {
			b.transition(domain.CircuitOpen)
		}
	case domain.CircuitHalfOpen:
		b.successes = 0
		b.transition(domain.CircuitOpen)
	case domain.CircuitOpen:
		// Already open; nothing new to record.
	}
}

func (b *Breaker) State() domain.CircuitStateName {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Snapshot() domain.CircuitSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return domain.CircuitSnapshot{
		Service:      b.service,
		State:        b.state,
		FailureCount: b.failures,
		SuccessCount: b.successes,
		LastFailure:  b.lastFailure,
	}
}
