package consolidation

import (
	"context"

	"github.com/quantumflow/quantumflow-memory/internal/graphstore"
	"github.com/quantumflow/quantumflow-memory/internal/models"
)

// ValidationResult separates decisions that passed validation from those
// that were dropped, so a single bad reference never aborts the batch.
type ValidationResult struct {
	Valid   []models.Decision
	Skipped int
}

// ValidateDecisions collapses duplicate entity ids within a batch (last
// writer wins) and drops Update/Delete decisions whose entity_id does not
// exist in the current graph state for the tenant. Add and Noop decisions
// always pass through untouched.
func ValidateDecisions(ctx context.Context, store *graphstore.Store, tenantID string, decisions []models.Decision) ValidationResult {
	collapsed := make(map[string]models.Decision)
	order := make([]string, 0, len(decisions))
	unkeyed := make([]models.Decision, 0)

	for _, d := range decisions {
		if d.EntityID == "" {
			unkeyed = append(unkeyed, d)
			continue
		}
		if _, seen := collapsed[d.EntityID]; !seen {
			order = append(order, d.EntityID)
		}
		collapsed[d.EntityID] = d // last writer wins
	}

	result := ValidationResult{Valid: make([]models.Decision, 0, len(decisions))}
	result.Valid = append(result.Valid, unkeyed...)

	for _, id := range order {
		d := collapsed[id]
		if d.Kind == models.DecisionUpdate || d.Kind == models.DecisionDelete {
			if _, err := store.GetEntity(ctx, tenantID, id); err != nil {
				result.Skipped++
				continue
			}
		}
		result.Valid = append(result.Valid, d)
	}

	result.Skipped += (len(decisions) - len(unkeyed)) - len(order) // duplicate ids collapsed away
	return result
}
