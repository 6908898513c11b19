// Package consolidation implements the consolidation engine (C4): batches
// of episodic records are pulled from an input queue, turned into a
// decision list via an LLM call, validated, and applied to the graph and
// vector stores.
package consolidation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/quantumflow/quantumflow-memory/internal/graphstore"
	"github.com/quantumflow/quantumflow-memory/internal/llmprovider"
	"github.com/quantumflow/quantumflow-memory/internal/metrics"
	"github.com/quantumflow/quantumflow-memory/internal/models"
	"github.com/quantumflow/quantumflow-memory/internal/vectorstore"
)

// Config tunes the adaptive scheduler and batch bounds.
type Config struct {
	MaxBatchSize       int
	BlockTimeout       time.Duration
	LowDepthThreshold  int64
	HighDepthThreshold int64
	FastInterval       time.Duration
	NormalInterval     time.Duration
	SlowInterval       time.Duration
	FailureThreshold   int
	BreakerCooldown    time.Duration
}

// DefaultConfig mirrors QuantumFlow's DefaultPoolConfig-style sizing.
func DefaultConfig() *Config {
	return &Config{
		MaxBatchSize:       32,
		BlockTimeout:       2 * time.Second,
		LowDepthThreshold:  5,
		HighDepthThreshold: 100,
		FastInterval:       500 * time.Millisecond,
		NormalInterval:     5 * time.Second,
		SlowInterval:       30 * time.Second,
		FailureThreshold:   5,
		BreakerCooldown:    30 * time.Second,
	}
}

// NextInterval picks fast/normal/slow by comparing queue depth to the two
// configured thresholds.
func (c *Config) NextInterval(queueDepth int64) time.Duration {
	switch {
	case queueDepth >= c.HighDepthThreshold:
		return c.FastInterval
	case queueDepth <= c.LowDepthThreshold:
		return c.SlowInterval
	default:
		return c.NormalInterval
	}
}

// Engine orchestrates the consolidation pipeline.
type Engine struct {
	provider    llmprovider.Provider
	providerCfg *llmprovider.Config
	graph       *graphstore.Store
	vectors     *vectorstore.Store
	queue       *Queue
	metricsCore *metrics.Core
	selector    metrics.VersionSelector
	breaker     *CircuitBreaker
	cfg         *Config
	logger      *zap.Logger
	embedder    Embedder
}

// NewEngine constructs an Engine. A missing default_model is a construction
// error: the engine never falls back to a hard-coded model name.
func NewEngine(
	providerCfg *llmprovider.Config,
	provider llmprovider.Provider,
	graph *graphstore.Store,
	vectors *vectorstore.Store,
	queue *Queue,
	metricsCore *metrics.Core,
	selector metrics.VersionSelector,
	embedder Embedder,
	cfg *Config,
	logger *zap.Logger,
) (*Engine, error) {
	if providerCfg == nil || providerCfg.DefaultModel == "" {
		return nil, fmt.Errorf("consolidation: provider configuration must specify default_model")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if selector == nil {
		selector = metrics.FixedSelector{Version: metrics.PromptVersionV1}
	}

	return &Engine{
		provider:    provider,
		providerCfg: providerCfg,
		graph:       graph,
		vectors:     vectors,
		queue:       queue,
		metricsCore: metricsCore,
		selector:    selector,
		breaker:     NewCircuitBreaker(cfg.FailureThreshold, cfg.BreakerCooldown),
		cfg:         cfg,
		logger:      logger,
		embedder:    embedder,
	}, nil
}

// RunCycle executes one consolidation cycle for a tenant/session: pull a
// batch, assemble a prompt, call the LLM under the circuit breaker and
// backoff, parse, validate, and apply. Returns the next scheduling interval
// regardless of whether work was found, so callers can drive a simple timer
// loop.
func (e *Engine) RunCycle(ctx context.Context, tenantID, sessionID string) (time.Duration, *metrics.ConsolidationResult, error) {
	depth, err := e.queue.Depth(ctx, tenantID)
	if err != nil {
		return e.cfg.NormalInterval, nil, fmt.Errorf("consolidation: queue depth: %w", err)
	}
	interval := e.cfg.NextInterval(depth)

	batch, err := e.queue.PopBatch(ctx, tenantID, e.cfg.MaxBatchSize, e.cfg.BlockTimeout)
	if err != nil {
		return interval, nil, fmt.Errorf("consolidation: pop batch: %w", err)
	}
	if len(batch) == 0 {
		return interval, nil, nil
	}

	version, err := e.selector.Select(ctx, sessionID)
	if err != nil {
		return interval, nil, fmt.Errorf("consolidation: select prompt version: %w", err)
	}
	prompt := assemblePrompt(version, batch)

	start := time.Now()
	avgTokens := estimateTokens(prompt)
	workload := ClassifyWorkload(len(batch), avgTokens)

	result, err := e.callLLM(ctx, prompt, workload)
	duration := time.Since(start)

	episodicByID := make(map[string]models.EpisodicRecord, len(batch))
	for _, rec := range batch {
		episodicByID[rec.ID] = rec
	}

	if err != nil {
		if e.metricsCore != nil {
			e.metricsCore.RecordConsolidation(metrics.ConsolidationResult{
				EntriesProcessed: len(batch),
				PromptVersion:    version,
				ParseSuccess:     false,
				DurationMs:       float64(duration.Milliseconds()),
			})
		}
		return interval, nil, fmt.Errorf("consolidation: llm call: %w", err)
	}

	decisions, parseErr := ParseDecisions(result.Text)
	parseSuccess := parseErr == nil

	cr := metrics.ConsolidationResult{
		EntriesProcessed: len(batch),
		PromptVersion:    version,
		ParseSuccess:     parseSuccess,
		DurationMs:       float64(duration.Milliseconds()),
		Model:            result.Model,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
	}

	if !parseSuccess {
		if e.metricsCore != nil {
			cr.Decisions = nil
			e.metricsCore.RecordConsolidation(cr)
		}
		return interval, &cr, fmt.Errorf("consolidation: parse response: %w", parseErr)
	}

	validated := ValidateDecisions(ctx, e.graph, tenantID, decisions)
	for i := 0; i < validated.Skipped && e.metricsCore != nil; i++ {
		e.metricsCore.RecordValidationFailure()
	}

	if err := ApplyDecisions(ctx, e.graph, e.vectors, e.embedder, tenantID, validated.Valid, episodicByID, e.metricsCore); err != nil {
		return interval, &cr, err
	}

	kinds := make([]models.DecisionKind, len(validated.Valid))
	for i, d := range validated.Valid {
		kinds[i] = d.Kind
	}
	cr.Decisions = kinds
	if e.metricsCore != nil {
		e.metricsCore.RecordConsolidation(cr)
	}

	return interval, &cr, nil
}

// callLLM wraps the provider call with the circuit breaker and an
// exponential-backoff retry loop whose base interval is sized by the
// workload classifier, grounded on steveyegge-beads' dolt store retry
// helper (newServerRetryBackoff / backoff.Retry).
func (e *Engine) callLLM(ctx context.Context, prompt string, workload WorkloadClass) (llmprovider.CompletionResult, error) {
	if !e.breaker.Allow() {
		return llmprovider.CompletionResult{}, ErrCircuitOpen
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = workload.BaseInterval()
	bo.MaxElapsedTime = 30 * time.Second

	var result llmprovider.CompletionResult
	retryErr := backoff.Retry(func() error {
		r, err := e.provider.Complete(ctx, prompt, llmprovider.SamplingParams{
			Model:       e.providerCfg.DefaultModel,
			Temperature: &e.providerCfg.Temperature,
			MaxTokens:   e.providerCfg.MaxTokens,
		})
		if err != nil {
			return err
		}
		result = r
		return nil
	}, backoff.WithContext(bo, ctx))

	if retryErr != nil {
		e.breaker.RecordFailure()
		return llmprovider.CompletionResult{}, retryErr
	}
	e.breaker.RecordSuccess()
	return result, nil
}

// assemblePrompt renders the consolidation prompt for a batch. The template
// varies by PromptVersion so the two can be A/B tested against each other
// through metrics.VersionSelector: V2 adds an explicit instruction to prefer
// "update" over "add" for near-duplicate entities, the variant this was
// introduced to measure.
func assemblePrompt(version metrics.PromptVersion, batch []models.EpisodicRecord) string {
	var b strings.Builder
	b.WriteString("You are consolidating episodic observations into durable entity changes.\n")
	b.WriteString("Respond with a JSON array of objects: ")
	b.WriteString(`{"kind": "add|update|delete|noop", "entity_id": "...", "changes": {...}, "episodic_id": "..."}`)
	if version == metrics.PromptVersionV2 {
		b.WriteString("\nPrefer \"update\" over \"add\" whenever an observation plausibly refers to an entity already present in context; reserve \"add\" for genuinely new entities.")
	}
	b.WriteString("\n\nObservations:\n")
	for _, rec := range batch {
		b.WriteString(fmt.Sprintf("- [%s] %s\n", rec.ID, rec.Content))
	}
	return b.String()
}

// estimateTokens is a coarse word-count proxy used only to size the
// workload classifier, not for cost accounting (cost uses the provider's
// reported token usage).
func estimateTokens(prompt string) int {
	return len(strings.Fields(prompt))
}
