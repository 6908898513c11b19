package consolidation

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is short-circuiting
// calls instead of letting them reach the LLM provider.
var ErrCircuitOpen = errors.New("consolidation: circuit breaker open")

// breakerState is the hand-rolled circuit breaker's state. No ecosystem
// circuit-breaker library appears anywhere in the retrieved pack, so this
// type is implemented directly rather than imported — see DESIGN.md.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker guards the LLM call: consecutive failures trip it open for
// a cooldown period, after which a single trial call is allowed through
// (half-open) to decide whether to close again or re-open.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            breakerState
	failureThreshold int
	cooldown         time.Duration
	consecutiveFails int
	openedAt         time.Time
}

// NewCircuitBreaker constructs a breaker that opens after failureThreshold
// consecutive failures and stays open for cooldown before allowing a trial.
func NewCircuitBreaker(failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{failureThreshold: failureThreshold, cooldown: cooldown}
}

// Allow reports whether a call may proceed, transitioning Open->HalfOpen
// once the cooldown has elapsed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerHalfOpen:
		return true
	case breakerOpen:
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = breakerHalfOpen
			return true
		}
		return false
	}
	return true
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.consecutiveFails = 0
}

// RecordFailure increments the failure count; from Closed it opens the
// breaker once the threshold is reached, from HalfOpen a single failure
// re-opens it immediately.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = time.Now()
		return
	}

	b.consecutiveFails++
	if b.consecutiveFails >= b.failureThreshold {
		b.state = breakerOpen
		b.openedAt = time.Now()
	}
}
