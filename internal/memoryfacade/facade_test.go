package memoryfacade

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantumflow/quantumflow-memory/internal/graphstore"
	"github.com/quantumflow/quantumflow-memory/internal/models"
	"github.com/quantumflow/quantumflow-memory/internal/vectorstore"
)

func newTestFacade(t *testing.T) (*Facade, *graphstore.Store, *vectorstore.Store) {
	t.Helper()
	dir := t.TempDir()
	graph, err := graphstore.Open(&graphstore.Config{DBPath: filepath.Join(dir, "graph.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { graph.Close() })

	vectors := vectorstore.NewStore(&vectorstore.Config{Dimensions: 3, Metric: vectorstore.MetricCosine}, nil)

	return New(vectors, graph), graph, vectors
}

func TestRecallReturnsVectorHitsWithGraphEnrichment(t *testing.T) {
	ctx := context.Background()
	f, graph, vectors := newTestFacade(t)

	alice, err := graph.AddEntity(ctx, models.Entity{TenantID: "t1", Name: "Alice", EntityType: "person"})
	require.NoError(t, err)
	bob, err := graph.AddEntity(ctx, models.Entity{TenantID: "t1", Name: "Bob", EntityType: "person"})
	require.NoError(t, err)
	_, err = graph.AddRelationship(ctx, models.Relationship{
		TenantID: "t1", FromEntity: alice.ID, ToEntity: bob.ID, RelationshipType: "knows",
	})
	require.NoError(t, err)

	scope := models.Scope{Kind: models.ScopeCustom, ID: "t1"}
	_, err = vectors.Insert(ctx, []models.VectorEntry{
		{ID: alice.ID, Embedding: []float32{1, 0, 0}, Scope: scope},
	})
	require.NoError(t, err)

	results, err := f.Recall(ctx, "t1", scope, []float32{1, 0, 0}, RecallOptions{K: 5, TraverseDepth: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, alice.ID, results[0].VectorHit.ID)
	require.Len(t, results[0].Related, 1)
	require.Equal(t, bob.ID, results[0].Related[0].Entity.ID)
}

func TestRecallWithoutTraverseSkipsGraphLookup(t *testing.T) {
	ctx := context.Background()
	f, _, vectors := newTestFacade(t)

	scope := models.Scope{Kind: models.ScopeCustom, ID: "t1"}
	_, err := vectors.Insert(ctx, []models.VectorEntry{
		{ID: "orphan-vec", Embedding: []float32{0, 1, 0}, Scope: scope},
	})
	require.NoError(t, err)

	results, err := f.Recall(ctx, "t1", scope, []float32{0, 1, 0}, RecallOptions{K: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Empty(t, results[0].Related)
}

func TestGetWithContextComposesEntityAndNeighbors(t *testing.T) {
	ctx := context.Background()
	f, graph, _ := newTestFacade(t)

	alice, err := graph.AddEntity(ctx, models.Entity{TenantID: "t1", Name: "Alice", EntityType: "person"})
	require.NoError(t, err)
	bob, err := graph.AddEntity(ctx, models.Entity{TenantID: "t1", Name: "Bob", EntityType: "person"})
	require.NoError(t, err)
	_, err = graph.AddRelationship(ctx, models.Relationship{
		TenantID: "t1", FromEntity: alice.ID, ToEntity: bob.ID, RelationshipType: "knows",
	})
	require.NoError(t, err)

	snap, err := f.GetWithContext(ctx, "t1", alice.ID, nil, 2)
	require.NoError(t, err)
	require.Equal(t, "Alice", snap.Entity.Name)
	require.Len(t, snap.Related, 1)
}

func TestMergeRankedOrdersByScoreThenID(t *testing.T) {
	a := []RecalledEntity{{VectorHit: vectorstore.SearchResult{ID: "b", Score: 0.5}}}
	b := []RecalledEntity{
		{VectorHit: vectorstore.SearchResult{ID: "a", Score: 0.9}},
		{VectorHit: vectorstore.SearchResult{ID: "c", Score: 0.5}},
	}
	merged := MergeRanked(a, b)
	require.Len(t, merged, 3)
	require.Equal(t, "a", merged[0].VectorHit.ID)
	require.Equal(t, "b", merged[1].VectorHit.ID) // tie broken by id: "b" < "c"
	require.Equal(t, "c", merged[2].VectorHit.ID)
}
