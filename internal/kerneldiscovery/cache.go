package kerneldiscovery

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// EndpointCache remembers successfully-probed kernel endpoints so repeat
// discovery calls skip the liveness probe for a short window. Backed by
// Badger's Update/View transaction pattern, adapted from QuantumFlow's
// procedural-memory store (internal/memory/procedural.go); an in-process
// sync.Map mirrors the same entries for the common case where discovery
// runs inside the same process as the cache, avoiding a Badger round trip
// on every lookup.
type EndpointCache struct {
	db  *badger.DB
	mem sync.Map // kernelID -> cachedEndpoint
	ttl time.Duration
}

type cachedEndpoint struct {
	Info     ConnectionInfo
	CachedAt time.Time
}

// NewEndpointCache opens (or creates) a Badger database at path. ttl bounds
// how long a cached endpoint is trusted without re-probing.
func NewEndpointCache(path string, ttl time.Duration) (*EndpointCache, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kerneldiscovery: open endpoint cache: %w", err)
	}
	return &EndpointCache{db: db, ttl: ttl}, nil
}

func endpointKey(kernelID string) []byte {
	return []byte(fmt.Sprintf("kernel:endpoint:%s", kernelID))
}

// Put records a confirmed-alive endpoint.
func (c *EndpointCache) Put(info ConnectionInfo) error {
	entry := cachedEndpoint{Info: info, CachedAt: time.Now().UTC()}
	c.mem.Store(info.KernelID, entry)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("kerneldiscovery: marshal cache entry: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(endpointKey(info.KernelID), data)
	})
}

// Get returns a cached endpoint if present and still within ttl.
func (c *EndpointCache) Get(kernelID string) (ConnectionInfo, bool) {
	if v, ok := c.mem.Load(kernelID); ok {
		entry := v.(cachedEndpoint)
		if time.Since(entry.CachedAt) <= c.ttl {
			return entry.Info, true
		}
		return ConnectionInfo{}, false
	}

	var entry cachedEndpoint
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(endpointKey(kernelID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return ConnectionInfo{}, false
	}
	if time.Since(entry.CachedAt) > c.ttl {
		return ConnectionInfo{}, false
	}
	c.mem.Store(kernelID, entry)
	return entry.Info, true
}

// Evict removes a stale endpoint from both cache layers.
func (c *EndpointCache) Evict(kernelID string) error {
	c.mem.Delete(kernelID)
	return c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(endpointKey(kernelID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// Close releases the underlying Badger database.
func (c *EndpointCache) Close() error {
	return c.db.Close()
}
