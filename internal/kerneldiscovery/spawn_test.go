package kerneldiscovery

import (
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test; it's re-executed as a child process
// by spawn tests (the same go-test-as-subprocess pattern used throughout
// the standard library's os/exec tests) to stand in for a kernel binary
// that listens on --port and exits on SIGTERM.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("QUANTUMFLOW_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	var port string
	for i, arg := range os.Args {
		if arg == "--port" && i+1 < len(os.Args) {
			port = os.Args[i+1]
		}
	}
	ln, err := net.Listen("tcp", "127.0.0.1:"+port)
	if err != nil {
		os.Exit(1)
	}
	defer ln.Close()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}
}

func helperSpawnConfig(t *testing.T, binaryName string) SpawnConfig {
	t.Helper()
	dir := t.TempDir()
	selfPath, err := os.Executable()
	require.NoError(t, err)

	script := filepath.Join(dir, binaryName)
	content := "#!/bin/sh\nexec " + strconv.Quote(selfPath) + " -test.run=TestHelperProcess -- \"$@\"\n"
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))

	return SpawnConfig{
		BinaryName:       binaryName,
		WellKnownDirs:    []string{dir},
		Engine:           EngineLua,
		ConnectTimeout:   200 * time.Millisecond,
		ConnectRetryWait: 20 * time.Millisecond,
		ConnectAttempts:  50,
	}
}

func TestSpawnLocatesAndConnectsToKernel(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("requires a POSIX shell")
	}
	os.Setenv("QUANTUMFLOW_WANT_HELPER_PROCESS", "1")
	defer os.Unsetenv("QUANTUMFLOW_WANT_HELPER_PROCESS")

	cfg := helperSpawnConfig(t, "fake-quantumflow-kernel")
	connDir := t.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	kernel, err := Spawn(ctx, cfg, connDir, "test-kernel")
	require.NoError(t, err)
	require.NotZero(t, kernel.PID())
	require.FileExists(t, kernel.ConnectionPath)

	require.NoError(t, Shutdown(ctx, kernel, ShutdownConfig{GracePeriod: time.Second, CleanupOnExit: true}))
	require.NoFileExists(t, kernel.ConnectionPath)
}

func TestLocateBinaryFailsWhenMissing(t *testing.T) {
	cfg := SpawnConfig{BinaryName: "definitely-not-a-real-binary-xyz"}
	_, err := locateBinary(cfg)
	require.Error(t, err)
}
