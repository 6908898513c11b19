package kerneldiscovery

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Engine selects the wire protocol / language a spawned kernel should run.
type Engine string

const (
	EngineLua Engine = "lua"
	EngineJS  Engine = "js"
)

// SpawnConfig configures how a kernel binary is located and launched.
type SpawnConfig struct {
	BinaryName       string   // e.g. "llmspell-kernel"
	WellKnownDirs    []string // additional directories to search besides PATH
	Engine           Engine
	LegacyTCP        bool
	ConnectTimeout   time.Duration
	ConnectRetryWait time.Duration
	ConnectAttempts  int
}

// DefaultSpawnConfig mirrors QuantumFlow's "search PATH, then a fixed list
// of build-output directories" binary-location idiom from cmd/quantumflow.
func DefaultSpawnConfig() SpawnConfig {
	return SpawnConfig{
		BinaryName:       "llmspell-kernel",
		WellKnownDirs:    []string{"./bin", "./target/release", "./target/debug"},
		Engine:           EngineLua,
		LegacyTCP:        true,
		ConnectTimeout:   500 * time.Millisecond,
		ConnectRetryWait: 100 * time.Millisecond,
		ConnectAttempts:  20,
	}
}

// SpawnedKernel is a kernel process discovery started and owns the
// lifecycle of.
type SpawnedKernel struct {
	Info           ConnectionInfo
	ConnectionPath string
	cmd            *exec.Cmd
}

// locateBinary looks on PATH first, then each WellKnownDir in order.
func locateBinary(cfg SpawnConfig) (string, error) {
	if path, err := exec.LookPath(cfg.BinaryName); err == nil {
		return path, nil
	}
	for _, dir := range cfg.WellKnownDirs {
		candidate := filepath.Join(dir, cfg.BinaryName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("kerneldiscovery: binary %q not found on PATH or in well-known directories", cfg.BinaryName)
}

// Spawn launches a kernel process, waits for its server socket to accept a
// connection (bounded retry loop), writes a Legacy connection file under
// connectionDir, and returns a handle discovery owns for the rest of the
// kernel's lifecycle.
func Spawn(ctx context.Context, cfg SpawnConfig, connectionDir string, kernelID string) (*SpawnedKernel, error) {
	bin, err := locateBinary(cfg)
	if err != nil {
		return nil, err
	}

	port, err := allocateLocalPort()
	if err != nil {
		return nil, err
	}

	args := []string{"--port", fmt.Sprintf("%d", port), "--engine", string(cfg.Engine)}
	if cfg.LegacyTCP {
		args = append(args, "--legacy-tcp")
	}

	cmd := exec.CommandContext(context.Background(), bin, args...) // outlives the spawning ctx; caller owns shutdown
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("kerneldiscovery: start %s: %w", bin, err)
	}

	info := ConnectionInfo{KernelID: kernelID, IP: "127.0.0.1", ShellPort: port}

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	connected := false
	for i := 0; i < attempts; i++ {
		if probeOnce(ctx, info.Addr(), cfg.ConnectTimeout) {
			connected = true
			break
		}
		select {
		case <-time.After(cfg.ConnectRetryWait):
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			return nil, ctx.Err()
		}
	}
	if !connected {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("kerneldiscovery: spawned kernel %s never accepted a connection after %d attempts", kernelID, attempts)
	}

	connPath := filepath.Join(connectionDir, fmt.Sprintf("kernel-%s.json", kernelID))
	if err := WriteLegacyConnectionFile(connPath, info); err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}
	info.Path = connPath

	return &SpawnedKernel{Info: info, ConnectionPath: connPath, cmd: cmd}, nil
}

// PID returns the spawned process's OS pid, for lifecycle tracking.
func (k *SpawnedKernel) PID() int {
	if k.cmd == nil || k.cmd.Process == nil {
		return 0
	}
	return k.cmd.Process.Pid
}
