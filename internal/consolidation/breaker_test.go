package consolidation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(3, 50*time.Millisecond)

	require.True(t, b.Allow())
	b.RecordFailure()
	require.True(t, b.Allow())
	b.RecordFailure()
	require.True(t, b.Allow())
	b.RecordFailure()

	require.False(t, b.Allow())
}

func TestCircuitBreakerHalfOpenAfterCooldown(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Millisecond)

	b.RecordFailure()
	require.False(t, b.Allow())

	time.Sleep(20 * time.Millisecond)
	require.True(t, b.Allow(), "should transition to half-open after cooldown")
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Millisecond)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	require.True(t, b.Allow())

	b.RecordFailure()
	require.False(t, b.Allow())
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	b := NewCircuitBreaker(2, 50*time.Millisecond)
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	require.True(t, b.Allow(), "a single post-reset failure should not trip the breaker")
}
