package metrics

import (
	"sync"
	"time"

	"github.com/quantumflow/quantumflow-memory/internal/models"
)

// DecisionCounts tallies the tagged-union decision kinds.
type DecisionCounts struct {
	Add    int
	Update int
	Delete int
	Noop   int
}

func (c *DecisionCounts) add(kinds []models.DecisionKind) {
	for _, k := range kinds {
		switch k {
		case models.DecisionAdd:
			c.Add++
		case models.DecisionUpdate:
			c.Update++
		case models.DecisionDelete:
			c.Delete++
		case models.DecisionNoop:
			c.Noop++
		}
	}
}

func (c DecisionCounts) total() int { return c.Add + c.Update + c.Delete + c.Noop }

// VersionMetrics aggregates everything keyed by prompt version.
type VersionMetrics struct {
	Consolidations int
	ParseSuccesses int
	ParseFailures  int
	Decisions      DecisionCounts
}

// ParseSuccessRate is parse_successes / (parse_successes + parse_failures),
// 0 when no observations exist.
func (v VersionMetrics) ParseSuccessRate() float64 {
	total := v.ParseSuccesses + v.ParseFailures
	if total == 0 {
		return 0
	}
	return float64(v.ParseSuccesses) / float64(total)
}

// ModelMetrics aggregates everything keyed by model name.
type ModelMetrics struct {
	Consolidations   int
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	TotalCost        float64
	Errors           int
}

// ConsolidationResult is what the consolidation engine reports after each
// cycle.
type ConsolidationResult struct {
	EntriesProcessed int
	Decisions        []models.DecisionKind
	PromptVersion    PromptVersion
	ParseSuccess     bool
	DurationMs       float64
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Core is the single metrics aggregator, guarded by one RWMutex: recording
// is one atomic write, lag update a second section, snapshots are read-locked
// copies handed back to the caller so the caller never blocks the writer.
type Core struct {
	mu sync.RWMutex

	entriesProcessed   int64
	consolidations     int64
	decisions          DecisionCounts
	parseFailures      int64
	validationFailures int64
	latenciesMs        []float64

	perVersion map[PromptVersion]*VersionMetrics
	perModel   map[string]*ModelMetrics
	pricing    map[string]ModelPricing

	lagSeconds []float64

	windowStart time.Time
}

// NewCore constructs an empty metrics aggregator.
func NewCore() *Core {
	return &Core{
		perVersion:  make(map[PromptVersion]*VersionMetrics),
		perModel:    make(map[string]*ModelMetrics),
		pricing:     defaultPricingTable(),
		windowStart: time.Now().UTC(),
	}
}

// SetPricing overrides or adds a model's pricing entry.
func (c *Core) SetPricing(model string, pricing ModelPricing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pricing[model] = pricing
}

// RecordConsolidation is the single atomic write for one consolidation
// cycle's outcome: updates global counters, per-version counters, per-model
// counters, and the latency vector.
func (c *Core) RecordConsolidation(r ConsolidationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entriesProcessed += int64(r.EntriesProcessed)
	c.consolidations++
	c.decisions.add(r.Decisions)
	c.latenciesMs = append(c.latenciesMs, r.DurationMs)
	if !r.ParseSuccess {
		c.parseFailures++
	}

	vm, ok := c.perVersion[r.PromptVersion]
	if !ok {
		vm = &VersionMetrics{}
		c.perVersion[r.PromptVersion] = vm
	}
	vm.Consolidations++
	if r.ParseSuccess {
		vm.ParseSuccesses++
	} else {
		vm.ParseFailures++
	}
	vm.Decisions.add(r.Decisions)

	if r.Model != "" {
		mm, ok := c.perModel[r.Model]
		if !ok {
			mm = &ModelMetrics{}
			c.perModel[r.Model] = mm
		}
		mm.Consolidations++
		mm.PromptTokens += int64(r.PromptTokens)
		mm.CompletionTokens += int64(r.CompletionTokens)
		mm.TotalTokens += int64(r.PromptTokens + r.CompletionTokens)
		if !r.ParseSuccess {
			mm.Errors++
		}
		pricing, ok := c.pricing[r.Model]
		if ok {
			mm.TotalCost += float64(r.PromptTokens)*pricing.Input + float64(r.CompletionTokens)*pricing.Output
		}
	}
}

// RecordValidationFailure increments the validation-failure counter without
// touching decision/latency state (one decision within a batch failed
// validation; the rest of the batch still applies).
func (c *Core) RecordValidationFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validationFailures++
}

// RecordLag appends a lag observation (now - event_time) for one applied
// episodic record, a second atomic section distinct from RecordConsolidation.
func (c *Core) RecordLag(lag time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lagSeconds = append(c.lagSeconds, lag.Seconds())
}

// Snapshot returns a point-in-time, independently-owned copy of the
// aggregate state.
type Snapshot struct {
	EntriesProcessed          int64
	Consolidations            int64
	Decisions                 DecisionCounts
	ParseFailures             int64
	ValidationFailures        int64
	Latency                   LatencyPercentiles
	LagSeconds                LatencyPercentiles
	PerVersion                map[PromptVersion]VersionMetrics
	PerModel                  map[string]ModelMetrics
	ThroughputEntriesPerSec   float64
	ThroughputDecisionsPerSec float64
}

// Snapshot takes a read lock, copies everything needed, and releases it
// before computing percentiles — callers never block the writer.
func (c *Core) Snapshot() Snapshot {
	c.mu.RLock()
	latencies := append([]float64(nil), c.latenciesMs...)
	lags := append([]float64(nil), c.lagSeconds...)
	entriesProcessed := c.entriesProcessed
	consolidations := c.consolidations
	decisions := c.decisions
	parseFailures := c.parseFailures
	validationFailures := c.validationFailures
	windowStart := c.windowStart

	perVersion := make(map[PromptVersion]VersionMetrics, len(c.perVersion))
	for k, v := range c.perVersion {
		perVersion[k] = *v
	}
	perModel := make(map[string]ModelMetrics, len(c.perModel))
	for k, v := range c.perModel {
		perModel[k] = *v
	}
	c.mu.RUnlock()

	elapsed := time.Since(windowStart).Seconds()
	var throughputEntries, throughputDecisions float64
	if elapsed > 0 {
		throughputEntries = float64(entriesProcessed) / elapsed
		throughputDecisions = float64(decisions.total()) / elapsed
	}

	return Snapshot{
		EntriesProcessed:          entriesProcessed,
		Consolidations:            consolidations,
		Decisions:                 decisions,
		ParseFailures:             parseFailures,
		ValidationFailures:        validationFailures,
		Latency:                   computeLatencyPercentiles(latencies),
		LagSeconds:                computeLatencyPercentiles(lags),
		PerVersion:                perVersion,
		PerModel:                  perModel,
		ThroughputEntriesPerSec:   throughputEntries,
		ThroughputDecisionsPerSec: throughputDecisions,
	}
}

// Reset zeroes all aggregate state, as if NewCore had just been called
// (pricing table is preserved — it's configuration, not an observation).
func (c *Core) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entriesProcessed = 0
	c.consolidations = 0
	c.decisions = DecisionCounts{}
	c.parseFailures = 0
	c.validationFailures = 0
	c.latenciesMs = nil
	c.lagSeconds = nil
	c.perVersion = make(map[PromptVersion]*VersionMetrics)
	c.perModel = make(map[string]*ModelMetrics)
	c.windowStart = time.Now().UTC()
}
