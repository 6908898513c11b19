package metrics

// PromotionConfig gates the auto-promotion evaluator.
type PromotionConfig struct {
	MinSampleSize       int
	MinParseImprovement float64
	Enabled             bool
}

// Recommendation names a candidate prompt version that beat the baseline.
type Recommendation struct {
	Candidate           PromptVersion
	Baseline            PromptVersion
	ParseRateImprovement float64
	AutoApply           bool
}

// EvaluatePromotion compares candidates against a baseline version's parse
// success rate. Returns nil when fewer than two versions exist or no
// candidate qualifies. When multiple candidates qualify, the one with the
// largest improvement is returned.
func (c *Core) EvaluatePromotion(baseline PromptVersion, candidates []PromptVersion, cfg PromotionConfig) *Recommendation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(candidates) == 0 {
		return nil
	}

	baselineMetrics, ok := c.perVersion[baseline]
	if !ok {
		return nil
	}
	baselineRate := baselineMetrics.ParseSuccessRate()

	var best *Recommendation
	for _, cand := range candidates {
		cm, ok := c.perVersion[cand]
		if !ok {
			continue
		}
		sampleSize := cm.ParseSuccesses + cm.ParseFailures
		if sampleSize < cfg.MinSampleSize {
			continue
		}
		improvement := cm.ParseSuccessRate() - baselineRate
		if improvement < cfg.MinParseImprovement {
			continue
		}
		if best == nil || improvement > best.ParseRateImprovement {
			best = &Recommendation{
				Candidate:            cand,
				Baseline:             baseline,
				ParseRateImprovement: improvement,
				AutoApply:            cfg.Enabled,
			}
		}
	}
	return best
}
