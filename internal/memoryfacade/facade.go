// Package memoryfacade implements the memory facade (C3): a thin read-side
// composition of the vector store (C1) and graph store (C2). It holds no
// independent state of its own — every call is answered by delegating to
// the two stores and merging their results, grounded on QuantumFlow's
// internal/memory package which layered a similar read composition over
// its Redis-backed vector and episodic stores.
package memoryfacade

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/quantumflow/quantumflow-memory/internal/graphstore"
	"github.com/quantumflow/quantumflow-memory/internal/models"
	"github.com/quantumflow/quantumflow-memory/internal/vectorstore"
)

// Facade composes a vector store and a graph store. It is safe for
// concurrent use because both underlying stores are.
type Facade struct {
	vectors *vectorstore.Store
	graph   *graphstore.Store
}

// New constructs a Facade over an existing vector store and graph store.
// Neither may be nil.
func New(vectors *vectorstore.Store, graph *graphstore.Store) *Facade {
	return &Facade{vectors: vectors, graph: graph}
}

// RecallOptions narrows a Recall call.
type RecallOptions struct {
	K               int
	MinScore        *float32
	AsOf            *time.Time // point-in-time view for both the vector search and graph enrichment
	TraverseDepth   int        // 0 disables graph enrichment entirely
	RelationshipType string
}

// RecalledEntity pairs a vector hit with the entities reachable from it in
// the graph at the query's point in time.
type RecalledEntity struct {
	VectorHit vectorstore.SearchResult
	Related   []models.TraversalHit
}

// Recall finds the k nearest vectors to query within scope, then enriches
// each hit whose id resolves to a graph entity with its neighborhood at
// AsOf (or now, if AsOf is nil). A vector hit with no matching entity is
// still returned, with an empty Related list — the facade does not require
// every embedding to have a graph counterpart.
func (f *Facade) Recall(ctx context.Context, tenantID string, scope models.Scope, query []float32, opts RecallOptions) ([]RecalledEntity, error) {
	if opts.K <= 0 {
		opts.K = 10
	}

	searchOpts := vectorstore.SearchOptions{MinScore: opts.MinScore, AsOf: opts.AsOf}
	hits, err := f.vectors.Search(ctx, scope, query, opts.K, searchOpts)
	if err != nil {
		return nil, fmt.Errorf("memoryfacade: recall search: %w", err)
	}

	out := make([]RecalledEntity, 0, len(hits))
	for _, hit := range hits {
		entry := RecalledEntity{VectorHit: hit}
		if opts.TraverseDepth > 0 {
			related, err := f.graph.Traverse(ctx, tenantID, hit.ID, opts.TraverseDepth, opts.RelationshipType, opts.AsOf)
			if err != nil {
				return nil, fmt.Errorf("memoryfacade: recall traverse %s: %w", hit.ID, err)
			}
			entry.Related = related
		}
		out = append(out, entry)
	}
	return out, nil
}

// EntitySnapshot is the point-in-time view of an entity plus its immediate
// relationships, used by GetWithContext.
type EntitySnapshot struct {
	Entity  models.Entity
	Related []models.TraversalHit
}

// GetWithContext fetches a single entity (at AsOf if set, otherwise current)
// together with its neighborhood up to depth hops away. Pure composition of
// C2's GetEntity/GetEntityAt and Traverse — no caching, no independent state.
func (f *Facade) GetWithContext(ctx context.Context, tenantID, entityID string, asOf *time.Time, depth int) (EntitySnapshot, error) {
	var entity models.Entity
	var err error
	if asOf != nil {
		entity, err = f.graph.GetEntityAt(ctx, tenantID, entityID, *asOf)
	} else {
		entity, err = f.graph.GetEntity(ctx, tenantID, entityID)
	}
	if err != nil {
		return EntitySnapshot{}, fmt.Errorf("memoryfacade: get entity %s: %w", entityID, err)
	}

	related, err := f.graph.Traverse(ctx, tenantID, entityID, depth, "", asOf)
	if err != nil {
		return EntitySnapshot{}, fmt.Errorf("memoryfacade: traverse from %s: %w", entityID, err)
	}

	return EntitySnapshot{Entity: entity, Related: related}, nil
}

// SearchTemporal is a direct pass-through to the graph store's temporal
// query, kept on the facade so callers never need to import graphstore
// directly for read-only access.
func (f *Facade) SearchTemporal(ctx context.Context, tenantID string, q models.TemporalQuery) ([]models.Entity, error) {
	entities, err := f.graph.QueryTemporal(ctx, tenantID, q)
	if err != nil {
		return nil, fmt.Errorf("memoryfacade: search temporal: %w", err)
	}
	return entities, nil
}

// MergeRanked interleaves recalled entities from multiple scopes (e.g. a
// session scope and its parent agent scope) into a single list ordered by
// vector score descending, breaking ties by entity id for determinism.
func MergeRanked(groups ...[]RecalledEntity) []RecalledEntity {
	var all []RecalledEntity
	for _, g := range groups {
		all = append(all, g...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].VectorHit.Score != all[j].VectorHit.Score {
			return all[i].VectorHit.Score > all[j].VectorHit.Score
		}
		return all[i].VectorHit.ID < all[j].VectorHit.ID
	})
	return all
}
