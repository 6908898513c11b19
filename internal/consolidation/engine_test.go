package consolidation

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/quantumflow/quantumflow-memory/internal/graphstore"
	"github.com/quantumflow/quantumflow-memory/internal/llmprovider"
	"github.com/quantumflow/quantumflow-memory/internal/metrics"
	"github.com/quantumflow/quantumflow-memory/internal/models"
	"github.com/quantumflow/quantumflow-memory/internal/vectorstore"
)

// fakeProvider is a scripted llmprovider.Provider used to drive the engine
// without a real LLM backend.
type fakeProvider struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string, sampling llmprovider.SamplingParams) (llmprovider.CompletionResult, error) {
	f.calls++
	if f.err != nil {
		return llmprovider.CompletionResult{}, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return llmprovider.CompletionResult{
		Text:  f.responses[idx],
		Model: sampling.Model,
		Usage: llmprovider.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func newEngineTestDeps(t *testing.T) (*graphstore.Store, *vectorstore.Store, *Queue) {
	t.Helper()
	dir := t.TempDir()

	graph, err := graphstore.Open(&graphstore.Config{DBPath: filepath.Join(dir, "graph.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { graph.Close() })

	vectors := vectorstore.NewStore(&vectorstore.Config{Dimensions: 4, Metric: vectorstore.MetricCosine}, nil)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	queue := NewQueue(client)

	return graph, vectors, queue
}

func TestRunCycleAppliesAddDecision(t *testing.T) {
	ctx := context.Background()
	graph, vectors, queue := newEngineTestDeps(t)

	require.NoError(t, queue.Push(ctx, models.EpisodicRecord{
		ID: "ep1", TenantID: "t1", Content: "Alice joined the team", EventTime: time.Now().UTC(),
	}))

	provider := &fakeProvider{responses: []string{
		`[{"kind":"add","changes":{"name":"Alice","entity_type":"person"},"episodic_id":"ep1"}]`,
	}}

	providerCfg := llmprovider.DefaultConfig()
	metricsCore := metrics.NewCore()

	engine, err := NewEngine(providerCfg, provider, graph, vectors, queue, metricsCore, nil, nil, DefaultConfig(), nil)
	require.NoError(t, err)

	interval, result, err := engine.RunCycle(ctx, "t1", "session-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.True(t, result.ParseSuccess)
	require.Greater(t, interval, time.Duration(0))

	snap := metricsCore.Snapshot()
	require.Equal(t, int64(1), snap.Consolidations)
	require.Equal(t, 1, snap.Decisions.Add)
}

func TestRunCycleEmptyBatchIsNoop(t *testing.T) {
	ctx := context.Background()
	graph, vectors, queue := newEngineTestDeps(t)

	provider := &fakeProvider{responses: []string{"[]"}}
	engine, err := NewEngine(llmprovider.DefaultConfig(), provider, graph, vectors, queue, metrics.NewCore(), nil, nil, DefaultConfig(), nil)
	require.NoError(t, err)

	_, result, err := engine.RunCycle(ctx, "nobody", "session-1")
	require.NoError(t, err)
	require.Nil(t, result)
	require.Equal(t, 0, provider.calls, "provider should not be called when the batch is empty")
}

func TestRunCycleParseFailureIsRecordedAndSkipped(t *testing.T) {
	ctx := context.Background()
	graph, vectors, queue := newEngineTestDeps(t)

	require.NoError(t, queue.Push(ctx, models.EpisodicRecord{ID: "ep1", TenantID: "t1", Content: "garbled"}))

	provider := &fakeProvider{responses: []string{"not valid json"}}
	metricsCore := metrics.NewCore()
	engine, err := NewEngine(llmprovider.DefaultConfig(), provider, graph, vectors, queue, metricsCore, nil, nil, DefaultConfig(), nil)
	require.NoError(t, err)

	_, result, err := engine.RunCycle(ctx, "t1", "session-1")
	require.Error(t, err)
	require.NotNil(t, result)
	require.False(t, result.ParseSuccess)

	snap := metricsCore.Snapshot()
	require.Equal(t, int64(1), snap.ParseFailures)
}

func TestNewEngineRequiresDefaultModel(t *testing.T) {
	graph, vectors, queue := newEngineTestDeps(t)
	cfg := &llmprovider.Config{}
	_, err := NewEngine(cfg, &fakeProvider{}, graph, vectors, queue, metrics.NewCore(), nil, nil, DefaultConfig(), nil)
	require.Error(t, err)
}

func TestConfigNextInterval(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, cfg.FastInterval, cfg.NextInterval(cfg.HighDepthThreshold))
	require.Equal(t, cfg.SlowInterval, cfg.NextInterval(cfg.LowDepthThreshold))
	require.Equal(t, cfg.NormalInterval, cfg.NextInterval((cfg.LowDepthThreshold+cfg.HighDepthThreshold)/2))
}

func TestCallLLMSurfacesCircuitOpen(t *testing.T) {
	bg := context.Background()
	graph, vectors, queue := newEngineTestDeps(t)

	provider := &fakeProvider{err: fmt.Errorf("boom")}
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	engine, err := NewEngine(llmprovider.DefaultConfig(), provider, graph, vectors, queue, metrics.NewCore(), nil, nil, cfg, nil)
	require.NoError(t, err)

	require.NoError(t, queue.Push(bg, models.EpisodicRecord{ID: "ep1", TenantID: "t1", Content: "x"}))
	// A short deadline bounds the backoff retry loop so the always-failing
	// provider trips the breaker without the test waiting out the full
	// exponential-backoff elapsed-time budget.
	ctx1, cancel1 := context.WithTimeout(bg, 50*time.Millisecond)
	defer cancel1()
	_, _, err = engine.RunCycle(ctx1, "t1", "s1")
	require.Error(t, err)

	require.NoError(t, queue.Push(bg, models.EpisodicRecord{ID: "ep2", TenantID: "t1", Content: "x"}))
	_, _, err = engine.RunCycle(bg, "t1", "s1")
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestAssemblePromptVariesByVersion(t *testing.T) {
	batch := []models.EpisodicRecord{{ID: "ep1", Content: "the user prefers dark mode"}}

	v1 := assemblePrompt(metrics.PromptVersionV1, batch)
	v2 := assemblePrompt(metrics.PromptVersionV2, batch)

	require.Contains(t, v1, "ep1")
	require.Contains(t, v2, "ep1")
	require.NotContains(t, v1, "Prefer \"update\"")
	require.Contains(t, v2, "Prefer \"update\"")
}
