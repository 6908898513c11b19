package kerneldiscovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLegacyConnectionFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kernel-abc.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"kernel_id":"abc","ip":"127.0.0.1","shell_port":9999}`), 0o600))

	info, err := ParseConnectionFile(path)
	require.NoError(t, err)
	require.Equal(t, "abc", info.KernelID)
	require.Equal(t, "127.0.0.1:9999", info.Addr())
}

func TestParseJupyterConnectionFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kernel-xyz.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ip":"127.0.0.1","shell_port":5555,"key":"abc123"}`), 0o600))

	info, err := ParseConnectionFile(path)
	require.NoError(t, err)
	require.Equal(t, "xyz", info.KernelID)
	require.Equal(t, 5555, info.ShellPort)
}

func TestParseConnectionFileRejectsUnknownShape(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-a-kernel.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"foo":"bar"}`), 0o600))

	_, err := ParseConnectionFile(path)
	require.Error(t, err)
}

func TestWriteLegacyConnectionFileRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kernel-rt.json")
	require.NoError(t, WriteLegacyConnectionFile(path, ConnectionInfo{KernelID: "rt", IP: "127.0.0.1", ShellPort: 1234}))

	info, err := ParseConnectionFile(path)
	require.NoError(t, err)
	require.Equal(t, "rt", info.KernelID)
	require.Equal(t, 1234, info.ShellPort)
}
