package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quantumflow/quantumflow-memory/internal/graphstore"
	"github.com/quantumflow/quantumflow-memory/internal/kerneldiscovery"
	"github.com/quantumflow/quantumflow-memory/internal/llmprovider"
	"github.com/quantumflow/quantumflow-memory/internal/vectorstore"
)

// AppConfig is the top-level on-disk configuration, one YAML file
// covering every component C1-C8 wires at startup. Mirrors QuantumFlow's
// habit of a single flat config struct per binary rather than per-package
// env lookups.
type AppConfig struct {
	TenantID    string                  `yaml:"tenant_id"`
	SessionID   string                  `yaml:"session_id"`
	HistoryFile string                  `yaml:"history_file"`
	RedisAddr   string                  `yaml:"redis_addr"`
	Graph       *graphstore.Config      `yaml:"graph"`
	Vectors     *vectorstore.Config     `yaml:"vectors"`
	Provider    *llmprovider.Config     `yaml:"provider"`
	Discovery   *kerneldiscovery.Config `yaml:"discovery,omitempty"`
}

// DefaultAppConfig wires each component's own DefaultConfig together.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		TenantID:    "default",
		SessionID:   "local",
		HistoryFile: "~/.quantumflow-memory/history.log",
		RedisAddr:   "127.0.0.1:6379",
		Graph:       graphstore.DefaultConfig(),
		Vectors:     vectorstore.DefaultConfig(),
		Provider:    llmprovider.DefaultConfig(),
	}
}

// LoadAppConfig reads path as YAML over the defaults; a missing file is not
// an error, so the binary runs with sane defaults out of the box.
func LoadAppConfig(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
