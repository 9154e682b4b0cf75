package processor

import (
	"sync"
	"time"

	domainerrors "fanztrust.orchestrator/internal/domain/errors"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/config"
)

// BreakerState is the circuit breaker's three-state machine.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// CircuitBreaker trips open on a sustained error rate and recovers through
// a half-open trial. One breaker guards one processor client pool.
type CircuitBreaker struct {
	mu           sync.Mutex
	cfg          config.CircuitConfig
	clock        clockwork.Clock
	state        BreakerState
	openedAt     time.Time
	outcomes     []outcome
	halfOpenUsed bool
}

type outcome struct {
	at      time.Time
	success bool
}

// NewCircuitBreaker builds a breaker in the closed state.
func NewCircuitBreaker(cfg config.CircuitConfig, clock clockwork.Clock) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, clock: clock, state: StateClosed}
}

// Allow reports whether a call may proceed right now. Half-open allows
// exactly one trial request at a time.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.clock.Since(b.openedAt) >= b.cfg.Window {
			b.state = StateHalfOpen
			b.halfOpenUsed = false
		} else {
			return false
		}
		fallthrough
	case StateHalfOpen:
		if b.halfOpenUsed {
			return false
		}
		b.halfOpenUsed = true
		return true
	default:
		return true
	}
}

// Record logs a call outcome and re-evaluates the trip condition.
func (b *CircuitBreaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.outcomes = append(b.outcomes, outcome{at: now, success: success})
	b.prune(now)

	if b.state == StateHalfOpen {
		if success {
			b.state = StateClosed
			b.outcomes = nil
			return
		}
		b.trip(now)
		return
	}

	if len(b.outcomes) < b.cfg.MinRequests {
		return
	}
	var failures int
	for _, o := range b.outcomes {
		if !o.success {
			failures++
		}
	}
	ratio := float64(failures) / float64(len(b.outcomes))
	if ratio >= b.cfg.ErrorRatio {
		b.trip(now)
	}
}

func (b *CircuitBreaker) trip(now time.Time) {
	b.state = StateOpen
	b.openedAt = now
	b.outcomes = nil
}

func (b *CircuitBreaker) prune(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	kept := b.outcomes[:0]
	for _, o := range b.outcomes {
		if o.at.After(cutoff) {
			kept = append(kept, o)
		}
	}
	b.outcomes = kept
}

// State returns the current breaker state, for metrics gauges.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ErrCircuitOpen surfaces when Allow() would reject a call.
var ErrCircuitOpen = domainerrors.New(domainerrors.CodeTransient, "circuit breaker open", nil).
	WithHint("processor is unhealthy, try the fallback chain")
