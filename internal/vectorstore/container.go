package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/quantumflow/quantumflow-memory/internal/models"
)

// insertBurstPerCPU bounds how many graph.Add submissions can fire back to
// back before insertLimiter starts pacing them, scaled by GOMAXPROCS like
// the worker pool itself.
const insertBurstPerCPU = 4

// HNSWParams tunes the per-namespace HNSW graph.
type HNSWParams struct {
	M              int
	EfConstruction int
	EfSearch       int
	Ml             float64
}

// DefaultHNSWParams mirrors the defaults used by the reference HNSW store
// (M=16, EfSearch=20, Ml=0.25).
func DefaultHNSWParams() HNSWParams {
	return HNSWParams{M: 16, EfConstruction: 200, EfSearch: 20, Ml: 0.25}
}

// entryMeta is the metadata held alongside each vector in a namespace
// container — everything about a VectorEntry except the embedding itself,
// which lives in the parallel vectors slice.
type entryMeta struct {
	ID        string
	Scope     models.Scope
	Metadata  map[string]interface{}
	EventTime time.Time
	CreatedAt time.Time
	ExpiresAt *time.Time
	Deleted   bool
}

// NamespaceStats reports the size and health of one namespace container.
type NamespaceStats struct {
	Namespace  string
	ValidCount int
	Orphans    int
	GraphNodes int
}

// namespaceContainer is the "array owns the data, graph is a rebuildable
// dependent" unit: vectors/ids/metadata are the source of truth, the HNSW
// graph is built from them and never persisted directly.
type namespaceContainer struct {
	mu sync.RWMutex

	name   string
	dims   int
	metric DistanceMetric
	params HNSWParams

	vectors [][]float32
	ids     []string
	meta    []entryMeta
	idIndex map[string]int // id -> slice index, includes soft-deleted entries

	graph   *hnsw.Graph[uint64]
	keyOf   map[string]uint64 // id -> graph key
	idOfKey map[uint64]string
	nextKey uint64
	graphMu sync.Mutex // serializes structural mutation of graph
	logger  *zap.Logger

	insertLimiter *rate.Limiter // throttles how fast insert() submits graph.Add work
}

func newNamespaceContainer(name string, dims int, metric DistanceMetric, params HNSWParams, logger *zap.Logger) *namespaceContainer {
	g := hnsw.NewGraph[uint64]()
	g.M = params.M
	g.EfSearch = params.EfSearch
	g.Ml = params.Ml
	g.Distance = distanceFunc(metric)

	cpus := runtime.GOMAXPROCS(0)
	return &namespaceContainer{
		name:          name,
		dims:          dims,
		metric:        metric,
		params:        params,
		idIndex:       make(map[string]int),
		graph:         g,
		keyOf:         make(map[string]uint64),
		idOfKey:       make(map[uint64]string),
		logger:        logger,
		insertLimiter: rate.NewLimiter(rate.Limit(cpus*insertBurstPerCPU), cpus*insertBurstPerCPU),
	}
}

// insert appends entries to the container and fans their insertion into the
// HNSW graph out across a small worker pool. The whole batch is one writer
// critical section under mu; graph.Add itself is additionally serialized by
// graphMu because coder/hnsw's own concurrency guarantees are narrower than
// the store's. Vector copying, normalization and key bookkeeping run
// sequentially before the pool starts; the workers only build each node and
// take turns on graphMu to add it. An entry with an empty ID is
// assigned a fresh one rather than colliding with every other empty-ID entry
// on the same slice slot; the assigned ids are returned in entry order.
func (c *namespaceContainer) insert(ctx context.Context, entries []models.VectorEntry) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	type prepared struct {
		idx int
		key uint64
		vec []float32
	}
	work := make([]prepared, 0, len(entries))
	ids := make([]string, len(entries))

	for i, e := range entries {
		if len(e.Embedding) != c.dims {
			return nil, &ErrDimensionMismatch{Expected: c.dims, Got: len(e.Embedding)}
		}

		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		ids[i] = id

		vec := make([]float32, len(e.Embedding))
		copy(vec, e.Embedding)
		if c.metric == MetricCosine {
			normalizeVectorInPlace(vec)
		}

		em := entryMeta{
			ID:        id,
			Scope:     e.Scope,
			Metadata:  e.Metadata,
			EventTime: e.EventTime,
			CreatedAt: e.CreatedAt,
			ExpiresAt: e.ExpiresAt,
		}

		var idx int
		if existing, ok := c.idIndex[id]; ok {
			// Re-insert of a known id: orphan the old graph key (lazy
			// delete — coder/hnsw has no safe single-node delete path for
			// the last node in a layer) and reuse the slice slot.
			c.orphanLocked(id)
			idx = existing
			c.vectors[idx] = vec
			c.meta[idx] = em
		} else {
			idx = len(c.vectors)
			c.vectors = append(c.vectors, vec)
			c.meta = append(c.meta, em)
			c.idIndex[id] = idx
		}

		key := c.nextKey
		c.nextKey++
		c.keyOf[id] = key
		c.idOfKey[key] = id

		work = append(work, prepared{idx: idx, key: key, vec: vec})
	}

	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range work {
		w := w
		if err := c.insertLimiter.Wait(gctx); err != nil {
			return nil, fmt.Errorf("vectorstore: insert throttle: %w", err)
		}
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			node := hnsw.MakeNode(w.key, w.vec)
			c.graphMu.Lock()
			c.graph.Add(node)
			c.graphMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

// orphanLocked removes an id's graph key mapping without touching the graph
// itself, matching the lazy-delete strategy: the node stays in the graph
// (coder/hnsw can corrupt its layer structure deleting the last remaining
// node) but is no longer reachable by id and is filtered out of search
// results by idOfKey lookups failing.
func (c *namespaceContainer) orphanLocked(id string) {
	if key, ok := c.keyOf[id]; ok {
		delete(c.idOfKey, key)
		delete(c.keyOf, id)
	}
}

func (c *namespaceContainer) search(ctx context.Context, query []float32, k int, filter func(entryMeta) bool) ([]SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(query) != c.dims {
		return nil, &ErrDimensionMismatch{Expected: c.dims, Got: len(query)}
	}

	q := make([]float32, len(query))
	copy(q, query)
	if c.metric == MetricCosine {
		normalizeVectorInPlace(q)
	}

	// Over-fetch to absorb orphaned/filtered hits, then trim to k.
	fetch := k * 4
	if fetch < k+8 {
		fetch = k + 8
	}
	nodes := c.graph.Search(q, fetch)

	results := make([]SearchResult, 0, k)
	for _, n := range nodes {
		id, ok := c.idOfKey[n.Key]
		if !ok {
			continue // orphaned key
		}
		idx, ok := c.idIndex[id]
		if !ok || c.meta[idx].Deleted {
			continue
		}
		em := c.meta[idx]
		if filter != nil && !filter(em) {
			continue
		}
		d := c.graph.Distance(q, c.vectors[idx])
		results = append(results, SearchResult{
			ID:       id,
			Score:    distanceToScore(d, c.metric),
			Scope:    em.Scope,
			Metadata: em.Metadata,
		})
		if len(results) >= k {
			break
		}
	}
	return results, nil
}

func (c *namespaceContainer) updateMetadata(id string, metadata map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.idIndex[id]
	if !ok || c.meta[idx].Deleted {
		return &ErrVectorNotFound{ID: id}
	}
	c.meta[idx].Metadata = metadata
	return nil
}

// delete is a lazy, metadata-only delete: the vector/graph key is orphaned
// and the slot is flagged, but slices are not compacted (compaction only
// happens on Save/Load rebuild).
func (c *namespaceContainer) delete(ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		idx, ok := c.idIndex[id]
		if !ok {
			continue
		}
		c.meta[idx].Deleted = true
		c.orphanLocked(id)
	}
	return nil
}

func (c *namespaceContainer) deleteScope(scope models.Scope) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, idx := range c.idIndex {
		if c.meta[idx].Deleted {
			continue
		}
		if c.meta[idx].Scope == scope {
			c.meta[idx].Deleted = true
			c.orphanLocked(id)
			n++
		}
	}
	return n
}

func (c *namespaceContainer) stats() NamespaceStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	valid := 0
	for _, m := range c.meta {
		if !m.Deleted {
			valid++
		}
	}
	return NamespaceStats{
		Namespace:  c.name,
		ValidCount: valid,
		Orphans:    len(c.meta) - valid,
		GraphNodes: c.graph.Len(),
	}
}

// SearchResult is one hit returned by Store.Search.
type SearchResult struct {
	ID       string
	Score    float32
	Scope    models.Scope
	Metadata map[string]interface{}
}
