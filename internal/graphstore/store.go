// Package graphstore implements the bi-temporal knowledge graph (C2) on top
// of SQLite, following the schema-init-and-indexed-table idiom QuantumFlow
// uses for its audit log (internal/integration/audit.go) and the recursive
// traversal shape of the original Rust graph backend.
package graphstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// FarFutureUnix is the bi-temporal "current row" / "still valid" sentinel.
const FarFutureUnix = 9999999999

// Config configures a Store.
type Config struct {
	DBPath string
}

// DefaultConfig points at a per-user data directory, mirroring QuantumFlow's
// "~/.quantumflow/..." convention for on-disk stores.
func DefaultConfig() *Config {
	return &Config{DBPath: "~/.quantumflow-memory/graph.db"}
}

// Store is a SQLite-backed bi-temporal entity/relationship graph, one
// database file per instance.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates (or reuses) the SQLite database at cfg.DBPath and ensures its
// schema exists.
func Open(cfg *Config, logger *zap.Logger) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	path := cfg.DBPath
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("graphstore: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("graphstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // go-sqlite3 serializes writers anyway; avoids SQLITE_BUSY churn

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("graphstore: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		entity_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		properties TEXT NOT NULL DEFAULT '{}',
		valid_time_start INTEGER NOT NULL,
		valid_time_end INTEGER NOT NULL,
		transaction_time_start INTEGER NOT NULL,
		transaction_time_end INTEGER NOT NULL,
		PRIMARY KEY (entity_id, transaction_time_start)
	);

	CREATE INDEX IF NOT EXISTS idx_entities_current
		ON entities(tenant_id, entity_id, transaction_time_end);
	CREATE INDEX IF NOT EXISTS idx_entities_valid_time
		ON entities(valid_time_start, valid_time_end);
	CREATE INDEX IF NOT EXISTS idx_entities_type
		ON entities(tenant_id, entity_type, transaction_time_end);

	CREATE TABLE IF NOT EXISTS relationships (
		relationship_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		from_entity TEXT NOT NULL,
		to_entity TEXT NOT NULL,
		relationship_type TEXT NOT NULL,
		properties TEXT NOT NULL DEFAULT '{}',
		valid_time_start INTEGER NOT NULL,
		valid_time_end INTEGER NOT NULL,
		transaction_time_start INTEGER NOT NULL,
		transaction_time_end INTEGER NOT NULL,
		PRIMARY KEY (relationship_id, transaction_time_start)
	);

	CREATE INDEX IF NOT EXISTS idx_rel_current
		ON relationships(tenant_id, relationship_id, transaction_time_end);
	CREATE INDEX IF NOT EXISTS idx_rel_from
		ON relationships(tenant_id, from_entity, transaction_time_end);
	CREATE INDEX IF NOT EXISTS idx_rel_valid_time
		ON relationships(valid_time_start, valid_time_end);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
