package replsession

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadHistoryMissingFileIsEmpty(t *testing.T) {
	h, err := LoadHistory(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	require.Empty(t, h.Entries())
}

func TestHistorySaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.log")
	h, err := LoadHistory(path)
	require.NoError(t, err)

	h.Append("print(1)")
	h.Append("print(2)")
	require.NoError(t, h.Save())

	reloaded, err := LoadHistory(path)
	require.NoError(t, err)
	require.Equal(t, []string{"print(1)", "print(2)"}, reloaded.Entries())
}

func TestHistoryClear(t *testing.T) {
	h, err := LoadHistory("")
	require.NoError(t, err)
	h.Append("x")
	h.Clear()
	require.Empty(t, h.Entries())
}

func TestHistoryEmptyPathSaveIsNoop(t *testing.T) {
	h, err := LoadHistory("")
	require.NoError(t, err)
	h.Append("x")
	require.NoError(t, h.Save())
}
