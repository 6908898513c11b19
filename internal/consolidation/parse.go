package consolidation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quantumflow/quantumflow-memory/internal/models"
)

// ErrParseFailed signals that the LLM response could not be parsed into a
// structured decision list; the engine records a parse failure metric and
// skips application for the batch. The unparsed response text is not used.
var ErrParseFailed = fmt.Errorf("consolidation: failed to parse LLM response as decision list")

// decisionPayload is the wire shape an LLM is prompted to emit.
type decisionPayload struct {
	Kind       string                 `json:"kind"`
	EntityID   string                 `json:"entity_id,omitempty"`
	Changes    map[string]interface{} `json:"changes,omitempty"`
	EpisodicID string                 `json:"episodic_id,omitempty"`
}

// cleanJSONResponse strips markdown code-fence wrapping an LLM sometimes
// adds around its JSON output, grounded on QuantumFlow's extractor.go
// helper of the same name.
func cleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)
	switch {
	case strings.HasPrefix(response, "```json"):
		response = strings.TrimPrefix(response, "```json")
	case strings.HasPrefix(response, "```"):
		response = strings.TrimPrefix(response, "```")
	}
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

// ParseDecisions parses an LLM response into a list of decision payloads.
// On failure it returns ErrParseFailed wrapped with the underlying cause;
// callers treat this as a parse-failure metric event and may skip
// application for the batch.
func ParseDecisions(response string) ([]models.Decision, error) {
	cleaned := cleanJSONResponse(response)

	var payloads []decisionPayload
	if err := json.Unmarshal([]byte(cleaned), &payloads); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	decisions := make([]models.Decision, 0, len(payloads))
	for _, p := range payloads {
		kind := models.DecisionKind(strings.ToLower(p.Kind))
		switch kind {
		case models.DecisionAdd, models.DecisionUpdate, models.DecisionDelete, models.DecisionNoop:
		default:
			return nil, fmt.Errorf("%w: unknown decision kind %q", ErrParseFailed, p.Kind)
		}
		decisions = append(decisions, models.Decision{
			Kind:       kind,
			EntityID:   p.EntityID,
			Changes:    p.Changes,
			EpisodicID: p.EpisodicID,
		})
	}
	return decisions, nil
}
