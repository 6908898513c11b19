// Command quantumflow-memory is the interactive entrypoint (C8) for the
// memory substrate: it wires the graph store (C2), vector store (C1), and
// consolidation engine (C4) from a single YAML config, discovers or spawns
// a kernel (C7), connects to it (C6), and drives a REPL against it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantumflow/quantumflow-memory/internal/consolidation"
	"github.com/quantumflow/quantumflow-memory/internal/graphstore"
	"github.com/quantumflow/quantumflow-memory/internal/kerneldiscovery"
	"github.com/quantumflow/quantumflow-memory/internal/kerneltransport"
	"github.com/quantumflow/quantumflow-memory/internal/llmprovider"
	"github.com/quantumflow/quantumflow-memory/internal/metrics"
	"github.com/quantumflow/quantumflow-memory/internal/replsession"
	"github.com/quantumflow/quantumflow-memory/internal/vectorstore"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML AppConfig (optional; sane defaults otherwise)")
	connDir := flag.String("connection-dir", "", "directory to write/search connection files in (defaults to the user search root)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(*configPath, *connDir, logger); err != nil {
		logger.Error("quantumflow-memory exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(configPath, connDir string, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("signal received, shutting down")
		cancel()
	}()

	cfg, err := LoadAppConfig(configPath)
	if err != nil {
		return fmt.Errorf("main: load config: %w", err)
	}

	graph, err := graphstore.Open(cfg.Graph, logger)
	if err != nil {
		return fmt.Errorf("main: open graph store: %w", err)
	}
	defer graph.Close()

	vectors := vectorstore.NewStore(cfg.Vectors, logger)
	if cfg.Vectors.PersistDir != "" {
		if err := vectors.Load(); err != nil {
			return fmt.Errorf("main: load vector store: %w", err)
		}
		defer func() {
			if err := vectors.Save(); err != nil {
				logger.Warn("best-effort vector store save on shutdown failed", zap.Error(err))
			}
		}()
	}

	stopConsolidation, err := startConsolidation(ctx, cfg, graph, vectors, logger)
	if err != nil {
		logger.Warn("consolidation engine disabled", zap.Error(err))
	} else {
		defer stopConsolidation()
	}

	root := connDir
	if root == "" {
		root = defaultConnectionRoot()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("main: create connection directory %s: %w", root, err)
	}

	discoveryCfg := cfg.Discovery
	if discoveryCfg == nil {
		discoveryCfg = kerneldiscovery.DefaultConfig()
	}
	discovery := kerneldiscovery.New(discoveryCfg, nil, nil, logger)

	kernelID := cfg.SessionID
	if kernelID == "" {
		kernelID = uuid.NewString()
	}
	info, spawned, err := discovery.ConnectOrStart(ctx, root, kernelID)
	if err != nil {
		return fmt.Errorf("main: connect or start kernel: %w", err)
	}
	if spawned != nil {
		defer func() {
			shCtx, shCancel := context.WithTimeout(context.Background(), discoveryCfg.Shutdown.GracePeriod+time.Second)
			defer shCancel()
			if err := kerneldiscovery.Shutdown(shCtx, spawned, discoveryCfg.Shutdown); err != nil {
				logger.Warn("kernel shutdown failed", zap.Error(err))
			}
		}()
	}

	client, err := kerneltransport.Connect(ctx, info.Addr(), kerneltransport.DefaultConfig(), logger)
	if err != nil {
		return fmt.Errorf("main: connect to kernel at %s: %w", info.Addr(), err)
	}
	defer client.Shutdown(context.Background()) //nolint:errcheck

	historyPath := cfg.HistoryFile
	if historyPath == "" {
		historyPath = defaultHistoryPath()
	}

	sess, err := replsession.NewSession(client, nil, os.Stdin, os.Stdout, historyPath, logger)
	if err != nil {
		return fmt.Errorf("main: create session: %w", err)
	}

	fmt.Fprintf(os.Stdout, "quantumflow-memory connected to kernel %s at %s\n", info.KernelID, info.Addr())
	return sess.Run(ctx)
}

// startConsolidation wires the consolidation engine (C4) to a Redis-backed
// input queue and runs its adaptive cycle in the background until ctx is
// cancelled or the returned stop function is called; stop cancels the loop
// and waits for it to exit. An error (including when no redis_addr is
// configured) means consolidation is simply not running (the REPL still
// works without it, since consolidation only feeds the stores, it does not
// gate reads).
func startConsolidation(ctx context.Context, cfg *AppConfig, graph *graphstore.Store, vectors *vectorstore.Store, logger *zap.Logger) (func(), error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("no redis_addr configured")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	queue := consolidation.NewQueue(rdb)
	metricsCore := metrics.NewCore()

	providerCfg := cfg.Provider
	if providerCfg == nil {
		providerCfg = llmprovider.DefaultConfig()
	}
	provider := llmprovider.NewClient(providerCfg)

	selector := consolidation.NewRedisSessionSelector(
		queue,
		[]metrics.PromptVersion{metrics.PromptVersionV1, metrics.PromptVersionV2},
		time.Now().UnixNano(),
	)

	engine, err := consolidation.NewEngine(
		providerCfg, provider, graph, vectors, queue, metricsCore,
		selector,
		nil, // no embedder wired: consolidation still updates the graph, vector sync is opt-in
		consolidation.DefaultConfig(), logger,
	)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("construct consolidation engine: %w", err)
	}

	ctx, cancelLoop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		interval := consolidation.DefaultConfig().NormalInterval
		timer := time.NewTimer(interval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				next, _, err := engine.RunCycle(ctx, cfg.TenantID, cfg.SessionID)
				if err != nil {
					logger.Warn("consolidation cycle failed", zap.Error(err))
				}
				if next <= 0 {
					next = interval
				}
				timer.Reset(next)
			}
		}
	}()

	return func() {
		cancelLoop()
		<-done
		_ = rdb.Close()
	}, nil
}

func defaultConnectionRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".llmspell", "kernels")
	}
	return filepath.Join(os.TempDir(), "llmspell-kernels")
}

func defaultHistoryPath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "quantumflow-memory", "history.log")
	}
	return ".quantumflow-memory-history.log"
}
