// Package vectorstore implements the multi-tenant HNSW vector index (C1):
// one HNSW graph per namespace, rebuilt from a persisted array of vectors
// and metadata rather than persisted itself.
package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quantumflow/quantumflow-memory/internal/models"
)

// Config configures a Store, following QuantumFlow's explicit
// Config+DefaultConfig idiom rather than a global registry.
type Config struct {
	Dimensions int
	Metric     DistanceMetric
	PersistDir string
	HNSWParams HNSWParams
}

// DefaultConfig returns sane defaults: 384-dim cosine vectors (matching the
// sentence-transformers model QuantumFlow's embedding config names) with no
// persistence directory configured — callers must set PersistDir to enable
// Save/Load.
func DefaultConfig() *Config {
	return &Config{
		Dimensions: 384,
		Metric:     MetricCosine,
		HNSWParams: DefaultHNSWParams(),
	}
}

// Store is the top-level multi-namespace vector index.
type Store struct {
	mu         sync.RWMutex
	namespaces map[string]*namespaceContainer
	cfg        *Config
	logger     *zap.Logger
}

// NewStore constructs an empty Store. Pass a nil logger to fall back to a
// no-op logger.
func NewStore(cfg *Config, logger *zap.Logger) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		namespaces: make(map[string]*namespaceContainer),
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *Store) namespaceLocked(name string) *namespaceContainer {
	ns, ok := s.namespaces[name]
	if !ok {
		ns = newNamespaceContainer(name, s.cfg.Dimensions, s.cfg.Metric, s.cfg.HNSWParams, s.logger)
		s.namespaces[name] = ns
	}
	return ns
}

// Insert adds or replaces vector entries, grouped by namespace, and returns
// the id assigned to each entry in the same order as entries. An entry
// whose ID is empty is assigned a fresh one.
func (s *Store) Insert(ctx context.Context, entries []models.VectorEntry) ([]string, error) {
	byNamespace := make(map[string][]models.VectorEntry)
	order := make(map[string][]int)
	for i, e := range entries {
		ns := e.Scope.Namespace()
		byNamespace[ns] = append(byNamespace[ns], e)
		order[ns] = append(order[ns], i)
	}

	s.mu.Lock()
	containers := make(map[string]*namespaceContainer, len(byNamespace))
	for ns := range byNamespace {
		containers[ns] = s.namespaceLocked(ns)
	}
	s.mu.Unlock()

	ids := make([]string, len(entries))
	for ns, group := range byNamespace {
		nsIDs, err := containers[ns].insert(ctx, group)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: insert into namespace %q: %w", ns, err)
		}
		for i, origIdx := range order[ns] {
			ids[origIdx] = nsIDs[i]
		}
	}
	return ids, nil
}

// SearchOptions narrows a Search call (metadata equality
// filters, temporal filters, similarity threshold).
type SearchOptions struct {
	MetadataEquals  map[string]interface{}
	EventTimeAfter  *time.Time
	EventTimeBefore *time.Time
	ExcludeExpired  bool
	MinScore        *float32
	AsOf            *time.Time // ignore entries created after AsOf
}

func (o SearchOptions) matches(m entryMeta, now time.Time) bool {
	for k, v := range o.MetadataEquals {
		if m.Metadata == nil {
			return false
		}
		mv, ok := m.Metadata[k]
		if !ok || mv != v {
			return false
		}
	}
	if o.EventTimeAfter != nil && m.EventTime.Before(*o.EventTimeAfter) {
		return false
	}
	if o.EventTimeBefore != nil && m.EventTime.After(*o.EventTimeBefore) {
		return false
	}
	if o.ExcludeExpired && m.ExpiresAt != nil && m.ExpiresAt.Before(now) {
		return false
	}
	if o.AsOf != nil && m.CreatedAt.After(*o.AsOf) {
		return false
	}
	return true
}

// Search runs a k-NN query against a single namespace scope.
func (s *Store) Search(ctx context.Context, scope models.Scope, query []float32, k int, opts SearchOptions) ([]SearchResult, error) {
	ns := scope.Namespace()
	s.mu.RLock()
	c, ok := s.namespaces[ns]
	s.mu.RUnlock()
	if !ok {
		return nil, &ErrNamespaceNotFound{Namespace: ns}
	}

	now := time.Now().UTC()
	results, err := c.search(ctx, query, k, func(m entryMeta) bool { return opts.matches(m, now) })
	if err != nil {
		return nil, err
	}
	if opts.MinScore != nil {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= *opts.MinScore {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	return results, nil
}

// UpdateMetadata patches the metadata of one vector entry by id within a
// namespace scope.
func (s *Store) UpdateMetadata(scope models.Scope, id string, metadata map[string]interface{}) error {
	ns := scope.Namespace()
	s.mu.RLock()
	c, ok := s.namespaces[ns]
	s.mu.RUnlock()
	if !ok {
		return &ErrNamespaceNotFound{Namespace: ns}
	}
	return c.updateMetadata(id, metadata)
}

// Delete lazily removes vector entries by id within a namespace scope.
func (s *Store) Delete(scope models.Scope, ids []string) error {
	ns := scope.Namespace()
	s.mu.RLock()
	c, ok := s.namespaces[ns]
	s.mu.RUnlock()
	if !ok {
		return &ErrNamespaceNotFound{Namespace: ns}
	}
	return c.delete(ids)
}

// DeleteScope removes every entry tagged with the given scope across
// whichever namespace it maps to, returning the count removed.
func (s *Store) DeleteScope(scope models.Scope) (int, error) {
	ns := scope.Namespace()
	s.mu.RLock()
	c, ok := s.namespaces[ns]
	s.mu.RUnlock()
	if !ok {
		return 0, &ErrNamespaceNotFound{Namespace: ns}
	}
	return c.deleteScope(scope), nil
}

// DeleteNamespace drops an entire namespace container, including its
// persisted file if PersistDir is configured.
func (s *Store) DeleteNamespace(name string) error {
	s.mu.Lock()
	delete(s.namespaces, name)
	s.mu.Unlock()

	if s.cfg.PersistDir == "" {
		return nil
	}
	path := containerPath(s.cfg.PersistDir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("vectorstore: remove %s: %w", path, err)
	}
	return nil
}

// Stats aggregates NamespaceStats across every namespace currently loaded.
func (s *Store) Stats() []NamespaceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]NamespaceStats, 0, len(s.namespaces))
	for _, c := range s.namespaces {
		out = append(out, c.stats())
	}
	return out
}

// NamespaceStats reports stats for a single namespace.
func (s *Store) NamespaceStats(name string) (NamespaceStats, error) {
	s.mu.RLock()
	c, ok := s.namespaces[name]
	s.mu.RUnlock()
	if !ok {
		return NamespaceStats{}, &ErrNamespaceNotFound{Namespace: name}
	}
	return c.stats(), nil
}

// Save persists every loaded namespace to cfg.PersistDir.
func (s *Store) Save() error {
	if s.cfg.PersistDir == "" {
		return fmt.Errorf("vectorstore: Save requires Config.PersistDir to be set")
	}
	s.mu.RLock()
	containers := make([]*namespaceContainer, 0, len(s.namespaces))
	for _, c := range s.namespaces {
		containers = append(containers, c)
	}
	s.mu.RUnlock()

	for _, c := range containers {
		if err := c.save(s.cfg.PersistDir); err != nil {
			return err
		}
	}
	return nil
}

// Load reads every <namespace>.mpack file in cfg.PersistDir and rebuilds
// its HNSW graph. Missing directory is treated as "no namespaces yet".
func (s *Store) Load() error {
	if s.cfg.PersistDir == "" {
		return fmt.Errorf("vectorstore: Load requires Config.PersistDir to be set")
	}
	entries, err := os.ReadDir(s.cfg.PersistDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("vectorstore: read dir %s: %w", s.cfg.PersistDir, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".mpack" {
			continue
		}
		ns := e.Name()[:len(e.Name())-len(".mpack")]
		c, found, err := loadNamespaceContainer(s.cfg.PersistDir, ns, s.cfg.Dimensions, s.cfg.Metric, s.cfg.HNSWParams)
		if err != nil {
			return err
		}
		if found {
			s.namespaces[ns] = c
		}
	}
	return nil
}
