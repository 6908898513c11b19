package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quantumflow/quantumflow-memory/internal/models"
)

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UTC().Unix()
	}
	return t.Unix()
}

func fromUnix(u int64) time.Time {
	return time.Unix(u, 0).UTC()
}

// AddEntity inserts a new current-row entity. If entity.ID is empty a fresh
// id is generated. ValidTimeStart defaults to now; ValidTimeEnd defaults to
// the far-future sentinel (still valid).
func (s *Store) AddEntity(ctx context.Context, entity models.Entity) (models.Entity, error) {
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	if entity.ValidTimeEnd.IsZero() {
		entity.ValidTimeEnd = models.FarFuture
	}

	props, err := json.Marshal(entity.Properties)
	if err != nil {
		return models.Entity{}, fmt.Errorf("graphstore: marshal properties: %w", err)
	}

	now := time.Now().UTC()
	validStart := entity.ValidTimeStart
	if validStart.IsZero() {
		validStart = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (
			entity_id, tenant_id, name, entity_type, properties,
			valid_time_start, valid_time_end,
			transaction_time_start, transaction_time_end
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entity.ID, entity.TenantID, entity.Name, entity.EntityType, string(props),
		toUnix(validStart), toUnix(entity.ValidTimeEnd),
		now.Unix(), FarFutureUnix,
	)
	if err != nil {
		return models.Entity{}, fmt.Errorf("graphstore: add entity: %w", err)
	}

	entity.ValidTimeStart = validStart
	entity.TransactionTimeStart = now
	entity.TransactionTimeEnd = models.FarFuture
	return entity, nil
}

// UpdateEntity merges properties into the current row of an existing entity
// in place. This is NOT a new bi-temporal version — it mutates the current
// row's transaction-time-end-sentinel row directly, matching the original
// Rust backend's update_entity behavior (graph.rs). Full append-only
// versioning is left as an Open Question resolved in DESIGN.md.
func (s *Store) UpdateEntity(ctx context.Context, tenantID, entityID string, changes map[string]interface{}) (models.Entity, error) {
	current, err := s.GetEntity(ctx, tenantID, entityID)
	if err != nil {
		return models.Entity{}, err
	}

	if current.Properties == nil {
		current.Properties = make(map[string]interface{}, len(changes))
	}
	for k, v := range changes {
		current.Properties[k] = v
	}

	props, err := json.Marshal(current.Properties)
	if err != nil {
		return models.Entity{}, fmt.Errorf("graphstore: marshal properties: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE entities SET properties = ?
		WHERE entity_id = ? AND tenant_id = ? AND transaction_time_end = ?`,
		string(props), entityID, tenantID, FarFutureUnix,
	)
	if err != nil {
		return models.Entity{}, fmt.Errorf("graphstore: update entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Entity{}, &ErrEntityNotFound{TenantID: tenantID, EntityID: entityID}
	}
	return current, nil
}

// GetEntity fetches the current row of an entity.
func (s *Store) GetEntity(ctx context.Context, tenantID, entityID string) (models.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT entity_id, tenant_id, name, entity_type, properties,
		       valid_time_start, valid_time_end,
		       transaction_time_start, transaction_time_end
		FROM entities
		WHERE tenant_id = ? AND entity_id = ? AND transaction_time_end = ?`,
		tenantID, entityID, FarFutureUnix,
	)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return models.Entity{}, &ErrEntityNotFound{TenantID: tenantID, EntityID: entityID}
	}
	if err != nil {
		return models.Entity{}, fmt.Errorf("graphstore: get entity: %w", err)
	}
	return e, nil
}

// GetEntityAt performs a point-in-time read: the row whose valid-time
// interval contains asOf, among currently-committed (transaction_time_end =
// sentinel) rows.
func (s *Store) GetEntityAt(ctx context.Context, tenantID, entityID string, asOf time.Time) (models.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT entity_id, tenant_id, name, entity_type, properties,
		       valid_time_start, valid_time_end,
		       transaction_time_start, transaction_time_end
		FROM entities
		WHERE tenant_id = ? AND entity_id = ?
		  AND valid_time_start <= ? AND valid_time_end > ?
		  AND transaction_time_end = ?`,
		tenantID, entityID, toUnix(asOf), toUnix(asOf), FarFutureUnix,
	)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return models.Entity{}, &ErrEntityNotFound{TenantID: tenantID, EntityID: entityID}
	}
	if err != nil {
		return models.Entity{}, fmt.Errorf("graphstore: get entity at %s: %w", asOf, err)
	}
	return e, nil
}

// DeleteBefore implements retention: permanently removes rows whose
// transaction_time_start is older than the cutoff and which are no longer
// the current row (transaction_time_end != sentinel), i.e. superseded
// history. Current rows are never deleted by retention.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM entities
		WHERE transaction_time_end != ? AND transaction_time_start < ?`,
		FarFutureUnix, toUnix(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("graphstore: delete before: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner) (models.Entity, error) {
	var e models.Entity
	var propsJSON string
	var validStart, validEnd, txStart, txEnd int64

	err := row.Scan(&e.ID, &e.TenantID, &e.Name, &e.EntityType, &propsJSON,
		&validStart, &validEnd, &txStart, &txEnd)
	if err != nil {
		return models.Entity{}, err
	}

	if err := json.Unmarshal([]byte(propsJSON), &e.Properties); err != nil {
		return models.Entity{}, fmt.Errorf("unmarshal properties: %w", err)
	}
	e.ValidTimeStart = fromUnix(validStart)
	e.ValidTimeEnd = fromUnix(validEnd)
	e.TransactionTimeStart = fromUnix(txStart)
	e.TransactionTimeEnd = fromUnix(txEnd)
	return e, nil
}

// ErrEntityNotFound is returned when no current row matches a tenant+id.
type ErrEntityNotFound struct {
	TenantID string
	EntityID string
}

func (e *ErrEntityNotFound) Error() string {
	return fmt.Sprintf("graphstore: entity %q not found for tenant %q", e.EntityID, e.TenantID)
}
