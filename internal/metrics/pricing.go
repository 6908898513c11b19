package metrics

// ModelPricing is the per-token cost of one model, priced per single token
// (not per-1K) so total_cost = prompt_tokens*Input + completion_tokens*Output
// holds exactly, with no unit-conversion rounding.
type ModelPricing struct {
	Input  float64
	Output float64
}

// defaultPricingTable seeds a handful of well-known models; callers
// override per-deployment via SetPricing, mirroring the original's
// ModelPricing map (llmspell-memory/src/consolidation/metrics.rs).
func defaultPricingTable() map[string]ModelPricing {
	return map[string]ModelPricing{
		"qwen2.5-coder:7b": {Input: 0, Output: 0}, // local model, no per-token cost
		"gpt-4o-mini":      {Input: 0.15e-6, Output: 0.6e-6},
		"gpt-4o":           {Input: 2.5e-6, Output: 10e-6},
		"claude-3-5-haiku": {Input: 0.8e-6, Output: 4e-6},
	}
}
