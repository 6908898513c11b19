package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantumflow/quantumflow-memory/internal/models"
)

func entry(id string, vec []float32, scope models.Scope) models.VectorEntry {
	return models.VectorEntry{
		ID:        id,
		Embedding: vec,
		Scope:     scope,
		CreatedAt: time.Now().UTC(),
		EventTime: time.Now().UTC(),
	}
}

func TestInsertAndSearchWithinScope(t *testing.T) {
	cfg := &Config{Dimensions: 3, Metric: MetricCosine, HNSWParams: DefaultHNSWParams()}
	s := NewStore(cfg, nil)

	scope := models.Scope{Kind: models.ScopeUser, ID: "u1"}
	ids, err := s.Insert(context.Background(), []models.VectorEntry{
		entry("a", []float32{1, 0, 0}, scope),
		entry("b", []float32{0, 1, 0}, scope),
		entry("c", []float32{0.9, 0.1, 0}, scope),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, ids)

	results, err := s.Search(context.Background(), scope, []float32{1, 0, 0}, 2, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "a", results[0].ID)
}

func TestSearchUnknownNamespace(t *testing.T) {
	s := NewStore(DefaultConfig(), nil)
	_, err := s.Search(context.Background(), models.Scope{Kind: models.ScopeUser, ID: "ghost"}, []float32{1, 2, 3}, 1, SearchOptions{})
	require.Error(t, err)
	var nsErr *ErrNamespaceNotFound
	require.ErrorAs(t, err, &nsErr)
}

func TestInsertRejectsDimensionMismatch(t *testing.T) {
	cfg := &Config{Dimensions: 4, Metric: MetricEuclidean, HNSWParams: DefaultHNSWParams()}
	s := NewStore(cfg, nil)
	scope := models.GlobalScope()
	_, err := s.Insert(context.Background(), []models.VectorEntry{entry("a", []float32{1, 2}, scope)})
	require.Error(t, err)
	var dimErr *ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	require.Equal(t, 4, dimErr.Expected)
	require.Equal(t, 2, dimErr.Got)
}

func TestDeleteIsLazyAndHidesFromSearch(t *testing.T) {
	cfg := &Config{Dimensions: 2, Metric: MetricCosine, HNSWParams: DefaultHNSWParams()}
	s := NewStore(cfg, nil)
	scope := models.GlobalScope()
	_, err := s.Insert(context.Background(), []models.VectorEntry{
		entry("a", []float32{1, 0}, scope),
		entry("b", []float32{0, 1}, scope),
	})
	require.NoError(t, err)

	require.NoError(t, s.Delete(scope, []string{"a"}))

	results, err := s.Search(context.Background(), scope, []float32{1, 0}, 5, SearchOptions{})
	require.NoError(t, err)
	for _, r := range results {
		require.NotEqual(t, "a", r.ID)
	}
}

func TestMetadataEqualityFilter(t *testing.T) {
	cfg := &Config{Dimensions: 2, Metric: MetricCosine, HNSWParams: DefaultHNSWParams()}
	s := NewStore(cfg, nil)
	scope := models.GlobalScope()

	withTag := entry("a", []float32{1, 0}, scope)
	withTag.Metadata = map[string]interface{}{"kind": "fact"}
	withoutTag := entry("b", []float32{1, 0}, scope)

	_, err := s.Insert(context.Background(), []models.VectorEntry{withTag, withoutTag})
	require.NoError(t, err)

	results, err := s.Search(context.Background(), scope, []float32{1, 0}, 5, SearchOptions{
		MetadataEquals: map[string]interface{}{"kind": "fact"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a", results[0].ID)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Dimensions: 2, Metric: MetricCosine, PersistDir: dir, HNSWParams: DefaultHNSWParams()}
	s := NewStore(cfg, nil)
	scope := models.Scope{Kind: models.ScopeSession, ID: "s1"}
	_, err := s.Insert(context.Background(), []models.VectorEntry{
		entry("a", []float32{1, 0}, scope),
		entry("b", []float32{0, 1}, scope),
	})
	require.NoError(t, err)
	require.NoError(t, s.Save())

	reloaded := NewStore(cfg, nil)
	require.NoError(t, reloaded.Load())

	results, err := reloaded.Search(context.Background(), scope, []float32{1, 0}, 2, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestUpdateMetadataUnknownID(t *testing.T) {
	s := NewStore(DefaultConfig(), nil)
	scope := models.GlobalScope()
	_, err := s.Insert(context.Background(), []models.VectorEntry{
		entry("a", make([]float32, 384), scope),
	})
	require.NoError(t, err)
	err = s.UpdateMetadata(scope, "missing", map[string]interface{}{"x": 1})
	require.Error(t, err)
	var notFound *ErrVectorNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestInsertAssignsFreshIDsWhenEmpty(t *testing.T) {
	cfg := &Config{Dimensions: 2, Metric: MetricCosine, HNSWParams: DefaultHNSWParams()}
	s := NewStore(cfg, nil)
	scope := models.GlobalScope()

	first := entry("", []float32{1, 0}, scope)
	second := entry("", []float32{0, 1}, scope)
	ids, err := s.Insert(context.Background(), []models.VectorEntry{first, second})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.NotEmpty(t, ids[0])
	require.NotEmpty(t, ids[1])
	require.NotEqual(t, ids[0], ids[1])

	stats, err := s.NamespaceStats(scope.Namespace())
	require.NoError(t, err)
	require.Equal(t, 2, stats.ValidCount) // distinct slots, not one overwriting the other
}
