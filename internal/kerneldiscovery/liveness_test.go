package kerneldiscovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsKernelAliveTrueForListeningPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	info := ConnectionInfo{KernelID: "k1", IP: "127.0.0.1", ShellPort: ln.Addr().(*net.TCPAddr).Port}
	cfg := DefaultLivenessConfig()
	cfg.MaxAttempts = 1
	b := newBreaker(cfg.FailureThreshold, cfg.Cooldown)

	recorder := &InMemoryRecorder{}
	require.True(t, IsKernelAlive(context.Background(), info, cfg, b, recorder))
	require.Len(t, recorder.Events, 1)
	require.True(t, recorder.Events[0].Success)
}

func TestIsKernelAliveFalseForClosedPort(t *testing.T) {
	info := ConnectionInfo{KernelID: "k2", IP: "127.0.0.1", ShellPort: 1}
	cfg := DefaultLivenessConfig()
	cfg.MaxAttempts = 2
	cfg.RetryBaseDelay = time.Millisecond
	cfg.DialTimeout = 20 * time.Millisecond
	b := newBreaker(cfg.FailureThreshold, cfg.Cooldown)

	recorder := &InMemoryRecorder{}
	require.False(t, IsKernelAlive(context.Background(), info, cfg, b, recorder))
	require.Len(t, recorder.Events, 2)
}

func TestIsKernelAliveShortCircuitsWhenBreakerOpen(t *testing.T) {
	info := ConnectionInfo{KernelID: "k3", IP: "127.0.0.1", ShellPort: 1}
	cfg := DefaultLivenessConfig()
	cfg.MaxAttempts = 1
	cfg.DialTimeout = 10 * time.Millisecond
	b := newBreaker(1, time.Hour)

	recorder := &InMemoryRecorder{}
	require.False(t, IsKernelAlive(context.Background(), info, cfg, b, recorder))
	require.False(t, IsKernelAlive(context.Background(), info, cfg, b, recorder), "breaker should now be open")
	require.Len(t, recorder.Events, 1, "second call should short-circuit before any probe")
}
