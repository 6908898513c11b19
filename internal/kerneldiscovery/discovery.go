package kerneldiscovery

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Config configures a Discovery instance.
type Config struct {
	TestRoot        string // extra search root, used only by tests
	Liveness        LivenessConfig
	Spawn           SpawnConfig
	Shutdown        ShutdownConfig
	CacheTTLSeconds int
}

// DefaultConfig wires the sub-package defaults together.
func DefaultConfig() *Config {
	return &Config{
		Liveness:        DefaultLivenessConfig(),
		Spawn:           DefaultSpawnConfig(),
		Shutdown:        DefaultShutdownConfig(),
		CacheTTLSeconds: 30,
	}
}

// Discovery finds, probes, and (if necessary) spawns kernels.
type Discovery struct {
	cfg      *Config
	cache    *EndpointCache
	recorder SessionRecorder
	breakers map[string]*breaker
	logger   *zap.Logger
}

// New constructs a Discovery. cache and recorder may be nil; a nil cache
// disables endpoint memoization (every call re-probes), a nil recorder
// disables event recording.
func New(cfg *Config, cache *EndpointCache, recorder SessionRecorder, logger *zap.Logger) *Discovery {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discovery{cfg: cfg, cache: cache, recorder: recorder, breakers: make(map[string]*breaker), logger: logger}
}

func (d *Discovery) breakerFor(kernelID string) *breaker {
	b, ok := d.breakers[kernelID]
	if !ok {
		b = newBreaker(d.cfg.Liveness.FailureThreshold, d.cfg.Liveness.Cooldown)
		d.breakers[kernelID] = b
	}
	return b
}

// DiscoverFirstAlive scans every search root in priority order and returns
// the first kernel that answers a liveness probe. Connection files that
// fail to parse are skipped; stale ones (liveness fails every attempt) are
// removed along the way. Returns (ConnectionInfo{}, false, nil) if no
// kernel is alive.
func (d *Discovery) DiscoverFirstAlive(ctx context.Context) (ConnectionInfo, bool, error) {
	for _, root := range SearchRoots(d.cfg) {
		files, err := listConnectionFiles(root)
		if err != nil {
			return ConnectionInfo{}, false, fmt.Errorf("kerneldiscovery: list %s: %w", root, err)
		}
		for _, file := range files {
			info, err := ParseConnectionFile(file)
			if err != nil {
				continue
			}

			if d.cache != nil {
				if cached, ok := d.cache.Get(info.KernelID); ok {
					return cached, true, nil
				}
			}

			b := d.breakerFor(info.KernelID)
			if IsKernelAlive(ctx, info, d.cfg.Liveness, b, d.recorder) {
				if d.cache != nil {
					_ = d.cache.Put(info)
				}
				return info, true, nil
			}
			_ = os.Remove(file)
		}
	}
	return ConnectionInfo{}, false, nil
}

// ConnectOrStart discovers a live kernel, or spawns one under connectionDir
// if none is alive.
func (d *Discovery) ConnectOrStart(ctx context.Context, connectionDir, kernelID string) (ConnectionInfo, *SpawnedKernel, error) {
	if info, ok, err := d.DiscoverFirstAlive(ctx); err != nil {
		return ConnectionInfo{}, nil, err
	} else if ok {
		return info, nil, nil
	}

	kernel, err := Spawn(ctx, d.cfg.Spawn, connectionDir, kernelID)
	if err != nil {
		return ConnectionInfo{}, nil, fmt.Errorf("kerneldiscovery: spawn fallback: %w", err)
	}
	if d.cache != nil {
		_ = d.cache.Put(kernel.Info)
	}
	return kernel.Info, kernel, nil
}
