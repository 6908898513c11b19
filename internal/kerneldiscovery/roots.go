package kerneldiscovery

import (
	"os"
	"path/filepath"
)

// envSearchRootOverride names the environment variable that adds an extra
// search root after discovery's built-in defaults (user, temp and cwd-side
// directories) and before any TestRoot.
const envSearchRootOverride = "QUANTUMFLOW_KERNEL_SEARCH_ROOT"

// SearchRoots returns the directories discovery scans for connection
// files, in priority order: user directory, system temp directory,
// cwd-side directory, environment override, then any TestRoot configured
// for the current process (empty unless explicitly set, so production
// discovery never picks up test fixtures).
func SearchRoots(cfg *Config) []string {
	var roots []string

	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, filepath.Join(home, ".llmspell", "kernels"))
	}

	roots = append(roots, filepath.Join(os.TempDir(), "llmspell-kernels"))

	if cwd, err := os.Getwd(); err == nil {
		roots = append(roots, filepath.Join(cwd, ".llmspell-kernels"))
	}

	if override := os.Getenv(envSearchRootOverride); override != "" {
		roots = append(roots, override)
	}

	if cfg != nil && cfg.TestRoot != "" {
		roots = append(roots, cfg.TestRoot)
	}

	return roots
}

// listConnectionFiles returns every *.json file directly under root. A
// missing root is not an error — it simply contributes no kernels.
func listConnectionFiles(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		files = append(files, filepath.Join(root, e.Name()))
	}
	return files, nil
}
