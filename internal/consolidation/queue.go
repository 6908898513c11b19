package consolidation

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/quantumflow/quantumflow-memory/internal/metrics"
	"github.com/quantumflow/quantumflow-memory/internal/models"
)

// Queue is the Redis-backed input queue for episodic records awaiting
// consolidation, plus the session-to-prompt-version sticky map so
// RandomPerSession survives engine restarts. Grounded on QuantumFlow's
// go-redis/redis/v8 usage in internal/memory/episodic.go, repurposed from
// vector search to list/hash plumbing.
type Queue struct {
	client *redis.Client
}

// NewQueue wraps an existing Redis client.
func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client}
}

func queueKey(tenantID string) string {
	return fmt.Sprintf("consolidation:episodic:%s", tenantID)
}

const sessionVersionKey = "consolidation:session_version"

// Push enqueues one episodic record for a tenant via RPUSH.
func (q *Queue) Push(ctx context.Context, rec models.EpisodicRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("consolidation: marshal episodic record: %w", err)
	}
	return q.client.RPush(ctx, queueKey(rec.TenantID), data).Err()
}

// PopBatch drains up to maxBatch records for a tenant, blocking up to
// blockTimeout for at least one record to appear via BLPOP, then draining
// the rest with non-blocking LPOP.
func (q *Queue) PopBatch(ctx context.Context, tenantID string, maxBatch int, blockTimeout time.Duration) ([]models.EpisodicRecord, error) {
	key := queueKey(tenantID)

	result, err := q.client.BLPop(ctx, blockTimeout, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consolidation: blpop: %w", err)
	}

	records := make([]models.EpisodicRecord, 0, maxBatch)
	var rec models.EpisodicRecord
	if err := json.Unmarshal([]byte(result[1]), &rec); err != nil {
		return nil, fmt.Errorf("consolidation: unmarshal episodic record: %w", err)
	}
	records = append(records, rec)

	for len(records) < maxBatch {
		v, err := q.client.LPop(ctx, key).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("consolidation: lpop: %w", err)
		}
		var r models.EpisodicRecord
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, fmt.Errorf("consolidation: unmarshal episodic record: %w", err)
		}
		records = append(records, r)
	}
	return records, nil
}

// Depth returns the current queue length for a tenant, used by the adaptive
// scheduler to pick fast/normal/slow cycle intervals.
func (q *Queue) Depth(ctx context.Context, tenantID string) (int64, error) {
	return q.client.LLen(ctx, queueKey(tenantID)).Result()
}

// StickyVersion reads the prompt version pinned for a session, if any.
func (q *Queue) StickyVersion(ctx context.Context, sessionID string) (string, bool, error) {
	v, err := q.client.HGet(ctx, sessionVersionKey, sessionID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("consolidation: hget sticky version: %w", err)
	}
	return v, true, nil
}

// SetStickyVersion pins a session to a prompt version.
func (q *Queue) SetStickyVersion(ctx context.Context, sessionID, version string) error {
	return q.client.HSet(ctx, sessionVersionKey, sessionID, version).Err()
}

// RedisSessionSelector is metrics.RandomPerSessionSelector's restart-durable
// counterpart: the session-to-version pin lives in the queue's Redis hash
// rather than process memory, so a consolidation engine restart does not
// reshuffle a session already mid-A/B-test onto a different prompt version.
type RedisSessionSelector struct {
	queue    *Queue
	versions []metrics.PromptVersion
	rng      *rand.Rand
	mu       sync.Mutex
}

// NewRedisSessionSelector builds a selector that pins sessions via queue.
func NewRedisSessionSelector(queue *Queue, versions []metrics.PromptVersion, seed int64) *RedisSessionSelector {
	return &RedisSessionSelector{queue: queue, versions: versions, rng: rand.New(rand.NewSource(seed))}
}

// Select returns the session's pinned version, assigning and persisting a
// fresh random one on first use.
func (r *RedisSessionSelector) Select(ctx context.Context, sessionID string) (metrics.PromptVersion, error) {
	if v, ok, err := r.queue.StickyVersion(ctx, sessionID); err != nil {
		return "", fmt.Errorf("consolidation: read sticky version: %w", err)
	} else if ok {
		return metrics.PromptVersion(v), nil
	}

	v := metrics.PromptVersionV1
	if len(r.versions) > 0 {
		r.mu.Lock()
		v = r.versions[r.rng.Intn(len(r.versions))]
		r.mu.Unlock()
	}
	if err := r.queue.SetStickyVersion(ctx, sessionID, string(v)); err != nil {
		return "", fmt.Errorf("consolidation: set sticky version: %w", err)
	}
	return v, nil
}
