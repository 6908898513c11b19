package graphstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quantumflow/quantumflow-memory/internal/models"
)

// QueryTemporal lists current entities for a tenant filtered by entity type
// and the two time axes (event/valid time via valid_time_start, ingestion
// via transaction_time_start).
func (s *Store) QueryTemporal(ctx context.Context, tenantID string, q models.TemporalQuery) ([]models.Entity, error) {
	query := `
		SELECT entity_id, tenant_id, name, entity_type, properties,
		       valid_time_start, valid_time_end,
		       transaction_time_start, transaction_time_end
		FROM entities
		WHERE tenant_id = ? AND transaction_time_end = ?`
	args := []interface{}{tenantID, FarFutureUnix}

	if q.EntityType != "" {
		query += " AND entity_type = ?"
		args = append(args, q.EntityType)
	}
	if q.EventTimeStart != nil {
		query += " AND valid_time_start >= ?"
		args = append(args, toUnix(*q.EventTimeStart))
	}
	if q.EventTimeEnd != nil {
		query += " AND valid_time_start <= ?"
		args = append(args, toUnix(*q.EventTimeEnd))
	}
	if q.IngestionTimeStart != nil {
		query += " AND transaction_time_start >= ?"
		args = append(args, toUnix(*q.IngestionTimeStart))
	}
	if q.IngestionTimeEnd != nil {
		query += " AND transaction_time_start <= ?"
		args = append(args, toUnix(*q.IngestionTimeEnd))
	}

	query += " ORDER BY transaction_time_start DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("graphstore: query temporal: %w", err)
	}
	defer rows.Close()

	var out []models.Entity
	for rows.Next() {
		var e models.Entity
		var propsJSON string
		var validStart, validEnd, txStart, txEnd int64
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Name, &e.EntityType, &propsJSON,
			&validStart, &validEnd, &txStart, &txEnd); err != nil {
			return nil, fmt.Errorf("graphstore: scan temporal row: %w", err)
		}
		if err := json.Unmarshal([]byte(propsJSON), &e.Properties); err != nil {
			return nil, fmt.Errorf("graphstore: unmarshal properties: %w", err)
		}
		e.ValidTimeStart = fromUnix(validStart)
		e.ValidTimeEnd = fromUnix(validEnd)
		e.TransactionTimeStart = fromUnix(txStart)
		e.TransactionTimeEnd = fromUnix(txEnd)
		out = append(out, e)
	}
	return out, rows.Err()
}
