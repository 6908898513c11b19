package kerneldiscovery

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// listenAndAccept starts a TCP listener that accepts (and immediately
// drops) connections, simulating a live kernel for liveness probing.
func listenAndAccept(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln
}

func TestDiscoverFirstAliveFindsLiveKernel(t *testing.T) {
	ln := listenAndAccept(t)
	port := ln.Addr().(*net.TCPAddr).Port

	testRoot := t.TempDir()
	require.NoError(t, WriteLegacyConnectionFile(filepath.Join(testRoot, "kernel-live.json"),
		ConnectionInfo{KernelID: "live", IP: "127.0.0.1", ShellPort: port}))

	cfg := DefaultConfig()
	cfg.TestRoot = testRoot
	cfg.Liveness.MaxAttempts = 1
	d := New(cfg, nil, nil, nil)

	info, ok, err := d.DiscoverFirstAlive(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "live", info.KernelID)
}

func TestDiscoverFirstAliveNoneAliveReturnsFalse(t *testing.T) {
	testRoot := t.TempDir()
	require.NoError(t, WriteLegacyConnectionFile(filepath.Join(testRoot, "kernel-dead.json"),
		ConnectionInfo{KernelID: "dead", IP: "127.0.0.1", ShellPort: 1}))

	cfg := DefaultConfig()
	cfg.TestRoot = testRoot
	cfg.Liveness.MaxAttempts = 1
	cfg.Liveness.RetryBaseDelay = time.Millisecond
	cfg.Liveness.DialTimeout = 20 * time.Millisecond
	d := New(cfg, nil, nil, nil)

	_, ok, err := d.DiscoverFirstAlive(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDiscoverFirstAliveUsesCache(t *testing.T) {
	ln := listenAndAccept(t)
	port := ln.Addr().(*net.TCPAddr).Port

	testRoot := t.TempDir()
	require.NoError(t, WriteLegacyConnectionFile(filepath.Join(testRoot, "kernel-cached.json"),
		ConnectionInfo{KernelID: "cached", IP: "127.0.0.1", ShellPort: port}))

	cacheDir := t.TempDir()
	cache, err := NewEndpointCache(filepath.Join(cacheDir, "cache.badger"), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	recorder := &InMemoryRecorder{}
	cfg := DefaultConfig()
	cfg.TestRoot = testRoot
	cfg.Liveness.MaxAttempts = 1
	d := New(cfg, cache, recorder, nil)

	_, ok, err := d.DiscoverFirstAlive(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	firstEventCount := len(recorder.Events)
	require.Greater(t, firstEventCount, 0)

	// Second call should hit the in-memory cache and skip the probe entirely.
	_, ok, err = d.DiscoverFirstAlive(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, firstEventCount, len(recorder.Events), "cached lookup should not record a new probe event")
}

func TestEndpointCachePutGetEvict(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewEndpointCache(filepath.Join(dir, "cache.badger"), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	info := ConnectionInfo{KernelID: "k1", IP: "127.0.0.1", ShellPort: 4000}
	require.NoError(t, cache.Put(info))

	got, ok := cache.Get("k1")
	require.True(t, ok)
	require.Equal(t, info.ShellPort, got.ShellPort)

	require.NoError(t, cache.Evict("k1"))
	_, ok = cache.Get("k1")
	require.False(t, ok)
}
