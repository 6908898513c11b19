package consolidation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/quantumflow/quantumflow-memory/internal/metrics"
	"github.com/quantumflow/quantumflow-memory/internal/models"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewQueue(client)
}

func TestQueuePushAndPopBatch(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, models.EpisodicRecord{ID: "e1", TenantID: "t1", Content: "a"}))
	require.NoError(t, q.Push(ctx, models.EpisodicRecord{ID: "e2", TenantID: "t1", Content: "b"}))

	batch, err := q.PopBatch(ctx, "t1", 10, 500*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, "e1", batch[0].ID)
	require.Equal(t, "e2", batch[1].ID)
}

func TestQueuePopBatchRespectsMaxBatch(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Push(ctx, models.EpisodicRecord{ID: string(rune('a' + i)), TenantID: "t1"}))
	}

	batch, err := q.PopBatch(ctx, "t1", 2, 500*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	depth, err := q.Depth(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, int64(3), depth)
}

func TestQueuePopBatchEmptyTimesOut(t *testing.T) {
	q := newTestQueue(t)
	batch, err := q.PopBatch(context.Background(), "nobody", 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, batch)
}

func TestQueueStickyVersionRoundTrip(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, ok, err := q.StickyVersion(ctx, "session-1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, q.SetStickyVersion(ctx, "session-1", "v2"))

	v, ok, err := q.StickyVersion(ctx, "session-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", v)
}

func TestRedisSessionSelectorPersistsAcrossInstances(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	sel := NewRedisSessionSelector(q, []metrics.PromptVersion{metrics.PromptVersionV1, metrics.PromptVersionV2}, 7)
	first, err := sel.Select(ctx, "session-a")
	require.NoError(t, err)

	// A fresh selector instance backed by the same queue (simulating a
	// restarted engine) must honor the existing pin rather than re-roll it.
	other := NewRedisSessionSelector(q, []metrics.PromptVersion{metrics.PromptVersionV1, metrics.PromptVersionV2}, 99)
	again, err := other.Select(ctx, "session-a")
	require.NoError(t, err)
	require.Equal(t, first, again)
}
