package kerneldiscovery

import (
	"context"
	"fmt"
	"os"
	"time"
)

// ShutdownConfig tunes the grace period between a polite stop signal and a
// force kill.
type ShutdownConfig struct {
	GracePeriod   time.Duration
	CleanupOnExit bool // remove the connection file on shutdown; disable for tests that want to inspect it after
}

// DefaultShutdownConfig grants a kernel 3 seconds to exit after the polite
// signal before it is force-killed.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{GracePeriod: 3 * time.Second, CleanupOnExit: true}
}

// Shutdown signals the spawned kernel to stop, waits up to cfg.GracePeriod,
// force-kills it if it hasn't exited, then removes the connection file
// unless cfg.CleanupOnExit is false.
func Shutdown(ctx context.Context, k *SpawnedKernel, cfg ShutdownConfig) error {
	if k.cmd == nil || k.cmd.Process == nil {
		return nil
	}

	if err := sendGracefulStop(k.cmd.Process); err != nil {
		_ = k.cmd.Process.Kill()
	}

	done := make(chan error, 1)
	go func() { done <- k.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(cfg.GracePeriod):
		_ = k.cmd.Process.Kill()
		<-done
	case <-ctx.Done():
		_ = k.cmd.Process.Kill()
		<-done
	}

	if cfg.CleanupOnExit && k.ConnectionPath != "" {
		if err := os.Remove(k.ConnectionPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("kerneldiscovery: remove connection file %s: %w", k.ConnectionPath, err)
		}
	}
	return nil
}
