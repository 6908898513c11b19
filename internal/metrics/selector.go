// Package metrics implements the metrics core (C5): consolidation/decision
// aggregation, percentile latency and lag tracking, per-prompt-version and
// per-model accounting, and the auto-promotion evaluator, behind a single
// reader-writer lock — the same mutex-protected-aggregation shape the
// teacher uses for its inference pool metrics (internal/inference/pool.go).
package metrics

import (
	"context"
	"math/rand"
	"sync"
)

// PromptVersion tags which prompt template produced a consolidation result.
type PromptVersion string

const (
	PromptVersionV1 PromptVersion = "v1"
	PromptVersionV2 PromptVersion = "v2"
)

// VersionSelector chooses a PromptVersion for a consolidation cycle. Select
// takes a context and can fail because a sticky selector may need to read or
// write shared storage to honor its assignment.
type VersionSelector interface {
	Select(ctx context.Context, sessionID string) (PromptVersion, error)
}

// FixedSelector always returns the same version.
type FixedSelector struct {
	Version PromptVersion
}

func (f FixedSelector) Select(context.Context, string) (PromptVersion, error) { return f.Version, nil }

// RandomPerConsolidationSelector returns a uniformly random version from
// Versions on every call.
type RandomPerConsolidationSelector struct {
	Versions []PromptVersion
	rng      *rand.Rand
	mu       sync.Mutex
}

// NewRandomPerConsolidationSelector seeds an independent RNG so concurrent
// selectors across tests don't share global rand state.
func NewRandomPerConsolidationSelector(versions []PromptVersion, seed int64) *RandomPerConsolidationSelector {
	return &RandomPerConsolidationSelector{Versions: versions, rng: rand.New(rand.NewSource(seed))}
}

func (r *RandomPerConsolidationSelector) Select(context.Context, string) (PromptVersion, error) {
	if len(r.Versions) == 0 {
		return PromptVersionV1, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Versions[r.rng.Intn(len(r.Versions))], nil
}

// RandomPerSessionSelector memoises the first choice for a session and
// returns it on every subsequent call for that session, so a single session
// never straddles two prompt versions mid-conversation. The assignment lives
// only in this process's memory; consolidation.RedisSessionSelector is the
// variant that keeps it in Redis so it survives a restart.
type RandomPerSessionSelector struct {
	Versions []PromptVersion
	rng      *rand.Rand
	mu       sync.Mutex
	sticky   map[string]PromptVersion
}

func NewRandomPerSessionSelector(versions []PromptVersion, seed int64) *RandomPerSessionSelector {
	return &RandomPerSessionSelector{
		Versions: versions,
		rng:      rand.New(rand.NewSource(seed)),
		sticky:   make(map[string]PromptVersion),
	}
}

func (r *RandomPerSessionSelector) Select(_ context.Context, sessionID string) (PromptVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.sticky[sessionID]; ok {
		return v, nil
	}
	v := PromptVersionV1
	if len(r.Versions) > 0 {
		v = r.Versions[r.rng.Intn(len(r.Versions))]
	}
	r.sticky[sessionID] = v
	return v, nil
}
