package kerneldiscovery

import (
	"sync"
	"time"
)

// breakerState mirrors the consolidation engine's circuit breaker shape
// (closed/open/half-open with a cooldown), kept as its own small type here
// since discovery's failure domain — a single kernel's liveness probe — is
// unrelated to the consolidation engine's LLM-call failure domain.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// breaker guards repeated liveness probes against one kernel endpoint.
type breaker struct {
	mu               sync.Mutex
	state            breakerState
	failureThreshold int
	cooldown         time.Duration
	consecutiveFails int
	openedAt         time.Time
}

func newBreaker(failureThreshold int, cooldown time.Duration) *breaker {
	return &breaker{failureThreshold: failureThreshold, cooldown: cooldown}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerOpen {
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = breakerHalfOpen
			return true
		}
		return false
	}
	return true
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.consecutiveFails = 0
}

func (b *breaker) recordFailure() {
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
