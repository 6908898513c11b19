package graphstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quantumflow/quantumflow-memory/internal/models"
)

// ResolveEntity looks for a current, same-tenant entity matching name+type
// and returns it; otherwise it creates a new one. This is the supplemented
// add-path dedup behaviour from the original consolidation decision
// validator (not in the distilled spec, not excluded by a Non-goal): an
// Add decision whose target already exists by name+type is folded into an
// Update rather than creating a duplicate entity.
func (s *Store) ResolveEntity(ctx context.Context, tenantID, name, entityType string, properties map[string]interface{}) (models.Entity, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT entity_id, tenant_id, name, entity_type, properties,
		       valid_time_start, valid_time_end,
		       transaction_time_start, transaction_time_end
		FROM entities
		WHERE tenant_id = ? AND name = ? AND entity_type = ? AND transaction_time_end = ?
		LIMIT 1`,
		tenantID, name, entityType, FarFutureUnix,
	)
	e, err := scanEntity(row)
	if err == nil {
		return e, false, nil
	}
	if err != sql.ErrNoRows {
		return models.Entity{}, false, fmt.Errorf("graphstore: resolve entity: %w", err)
	}

	created, err := s.AddEntity(ctx, models.Entity{
		TenantID:   tenantID,
		Name:       name,
		EntityType: entityType,
		Properties: properties,
	})
	if err != nil {
		return models.Entity{}, false, err
	}
	return created, true, nil
}
