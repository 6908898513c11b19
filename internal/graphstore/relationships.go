package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quantumflow/quantumflow-memory/internal/models"
)

// AddRelationship inserts a new current-row relationship edge after
// confirming both endpoints exist as current entities for the tenant.
func (s *Store) AddRelationship(ctx context.Context, rel models.Relationship) (models.Relationship, error) {
	if _, err := s.GetEntity(ctx, rel.TenantID, rel.FromEntity); err != nil {
		return models.Relationship{}, fmt.Errorf("graphstore: add relationship: from_entity: %w", err)
	}
	if _, err := s.GetEntity(ctx, rel.TenantID, rel.ToEntity); err != nil {
		return models.Relationship{}, fmt.Errorf("graphstore: add relationship: to_entity: %w", err)
	}

	if rel.ID == "" {
		rel.ID = uuid.NewString()
	}
	if rel.ValidTimeEnd.IsZero() {
		rel.ValidTimeEnd = models.FarFuture
	}

	props, err := json.Marshal(rel.Properties)
	if err != nil {
		return models.Relationship{}, fmt.Errorf("graphstore: marshal properties: %w", err)
	}

	now := time.Now().UTC()
	validStart := rel.ValidTimeStart
	if validStart.IsZero() {
		validStart = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relationships (
			relationship_id, tenant_id, from_entity, to_entity, relationship_type,
			properties, valid_time_start, valid_time_end,
			transaction_time_start, transaction_time_end
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rel.ID, rel.TenantID, rel.FromEntity, rel.ToEntity, rel.RelationshipType,
		string(props), toUnix(validStart), toUnix(rel.ValidTimeEnd),
		now.Unix(), FarFutureUnix,
	)
	if err != nil {
		return models.Relationship{}, fmt.Errorf("graphstore: add relationship: %w", err)
	}

	rel.ValidTimeStart = validStart
	rel.TransactionTimeStart = now
	rel.TransactionTimeEnd = models.FarFuture
	return rel, nil
}

