package consolidation

import (
	"context"
	"fmt"
	"time"

	"github.com/quantumflow/quantumflow-memory/internal/graphstore"
	"github.com/quantumflow/quantumflow-memory/internal/metrics"
	"github.com/quantumflow/quantumflow-memory/internal/models"
	"github.com/quantumflow/quantumflow-memory/internal/vectorstore"
)

// Embedder generates a vector embedding for newly added or updated entity
// text, so C1 can be kept in sync with C2 changes applied here. Optional:
// a nil Embedder skips the vector-store half of application.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ApplyDecisions calls graphstore for each validated Add and Update, updates
// the vector store for Add/Update when an Embedder is supplied, and records
// lag for every episodic record that produced an applied decision. A Delete
// removes only the entity's vector-store entry; its graph row is not
// deleted. Storage
// failures are not swallowed: they abort the remaining application and
// surface to the caller.
func ApplyDecisions(
	ctx context.Context,
	graph *graphstore.Store,
	vectors *vectorstore.Store,
	embedder Embedder,
	tenantID string,
	decisions []models.Decision,
	episodicByID map[string]models.EpisodicRecord,
	metricsCore *metrics.Core,
) error {
	now := time.Now().UTC()

	for _, d := range decisions {
		switch d.Kind {
		case models.DecisionNoop:
			// nothing to apply

		case models.DecisionAdd:
			name, _ := d.Changes["name"].(string)
			entityType, _ := d.Changes["entity_type"].(string)
			entity, created, err := graph.ResolveEntity(ctx, tenantID, name, entityType, d.Changes)
			if err != nil {
				return fmt.Errorf("consolidation: apply add: %w", err)
			}
			if !created {
				if _, err := graph.UpdateEntity(ctx, tenantID, entity.ID, d.Changes); err != nil {
					return fmt.Errorf("consolidation: apply add (resolved to update): %w", err)
				}
			}
			if err := embedEntity(ctx, vectors, embedder, tenantID, entity, d.Changes); err != nil {
				return err
			}

		case models.DecisionUpdate:
			entity, err := graph.UpdateEntity(ctx, tenantID, d.EntityID, d.Changes)
			if err != nil {
				return fmt.Errorf("consolidation: apply update: %w", err)
			}
			if err := embedEntity(ctx, vectors, embedder, tenantID, entity, d.Changes); err != nil {
				return err
			}

		case models.DecisionDelete:
			if err := vectors.Delete(models.Scope{Kind: models.ScopeCustom, ID: tenantID}, []string{d.EntityID}); err != nil {
				// Deletion from the vector store is best-effort — the
				// entity may never have had an embedding.
				_ = err
			}
		}

		if d.EpisodicID != "" && metricsCore != nil {
			if rec, ok := episodicByID[d.EpisodicID]; ok && !rec.EventTime.IsZero() {
				metricsCore.RecordLag(now.Sub(rec.EventTime))
			}
		}
	}
	return nil
}

func embedEntity(ctx context.Context, vectors *vectorstore.Store, embedder Embedder, tenantID string, entity models.Entity, changes map[string]interface{}) error {
	if embedder == nil || vectors == nil {
		return nil
	}
	text, _ := changes["text"].(string)
	if text == "" {
		text = entity.Name
	}
	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("consolidation: embed entity %s: %w", entity.ID, err)
	}
	scope := models.Scope{Kind: models.ScopeCustom, ID: tenantID}
	_, err = vectors.Insert(ctx, []models.VectorEntry{{
		ID:        entity.ID,
		Embedding: vec,
		Scope:     scope,
		Metadata:  entity.Properties,
		EventTime: entity.ValidTimeStart,
		CreatedAt: time.Now().UTC(),
	}})
	return err
}
