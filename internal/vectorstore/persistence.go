package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/quantumflow/quantumflow-memory/internal/models"
)

// persistedEntry is the on-disk shape of one container row. It intentionally
// excludes the HNSW graph and graph keys — those are rebuilt on load: the
// array owns the data, the graph is a dependent index.
type persistedEntry struct {
	ID        string                 `msgpack:"id"`
	Vector    []float32              `msgpack:"vector"`
	ScopeKind string                 `msgpack:"scope_kind"`
	ScopeID   string                 `msgpack:"scope_id"`
	Metadata  map[string]interface{} `msgpack:"metadata"`
	EventTime time.Time              `msgpack:"event_time"`
	CreatedAt time.Time              `msgpack:"created_at"`
	ExpiresAt *time.Time             `msgpack:"expires_at,omitempty"`
	Deleted   bool                   `msgpack:"deleted"`
}

type persistedContainer struct {
	Namespace string           `msgpack:"namespace"`
	Dims      int              `msgpack:"dims"`
	Metric    string           `msgpack:"metric"`
	Params    HNSWParams       `msgpack:"params"`
	Entries   []persistedEntry `msgpack:"entries"`
}

func containerPath(dir, namespace string) string {
	return filepath.Join(dir, namespace+".mpack")
}

// save writes the container to <dir>/<namespace>.mpack via a temp-file
// rename, so a crash mid-write never leaves a truncated file behind.
func (c *namespaceContainer) save(dir string) error {
	c.mu.RLock()
	pc := persistedContainer{
		Namespace: c.name,
		Dims:      c.dims,
		Metric:    string(c.metric),
		Params:    c.params,
		Entries:   make([]persistedEntry, len(c.vectors)),
	}
	for i, v := range c.vectors {
		m := c.meta[i]
		pc.Entries[i] = persistedEntry{
			ID:        m.ID,
			Vector:    v,
			ScopeKind: string(m.Scope.Kind),
			ScopeID:   m.Scope.ID,
			Metadata:  m.Metadata,
			EventTime: m.EventTime,
			CreatedAt: m.CreatedAt,
			ExpiresAt: m.ExpiresAt,
			Deleted:   m.Deleted,
		}
	}
	c.mu.RUnlock()

	data, err := msgpack.Marshal(pc)
	if err != nil {
		return fmt.Errorf("vectorstore: marshal namespace %q: %w", c.name, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vectorstore: mkdir %s: %w", dir, err)
	}

	path := containerPath(dir, c.name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("vectorstore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("vectorstore: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// loadNamespaceContainer reads a persisted container and rebuilds its HNSW
// graph from the recovered vectors. A missing file is not an error — the
// caller treats it as an empty namespace.
func loadNamespaceContainer(dir, namespace string, fallbackDims int, fallbackMetric DistanceMetric, params HNSWParams) (*namespaceContainer, bool, error) {
	path := containerPath(dir, namespace)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("vectorstore: read %s: %w", path, err)
	}

	var pc persistedContainer
	if err := msgpack.Unmarshal(data, &pc); err != nil {
		return nil, false, fmt.Errorf("vectorstore: unmarshal %s: %w", path, err)
	}

	dims := pc.Dims
	if dims == 0 {
		dims = fallbackDims
	}
	metric := DistanceMetric(pc.Metric)
	if metric == "" {
		metric = fallbackMetric
	}
	c := newNamespaceContainer(namespace, dims, metric, pc.Params, nil)

	entries := make([]models.VectorEntry, 0, len(pc.Entries))
	for _, e := range pc.Entries {
		if e.Deleted {
			continue
		}
		entries = append(entries, models.VectorEntry{
			ID:        e.ID,
			Embedding: e.Vector,
			Scope:     models.Scope{Kind: models.ScopeKind(e.ScopeKind), ID: e.ScopeID},
			Metadata:  e.Metadata,
			EventTime: e.EventTime,
			CreatedAt: e.CreatedAt,
			ExpiresAt: e.ExpiresAt,
		})
	}
	if len(entries) > 0 {
		if _, err := c.insert(context.Background(), entries); err != nil {
			return nil, false, fmt.Errorf("vectorstore: rebuild namespace %q: %w", namespace, err)
		}
	}
	return c, true, nil
}
