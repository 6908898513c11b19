package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantumflow/quantumflow-memory/internal/models"
)

const maxTraverseDepth = 10

// Traverse performs a breadth-first recursive walk outward from startID,
// following relationships up to maxDepth hops (capped at maxTraverseDepth),
// using a SQLite WITH RECURSIVE CTE with JSON-array path tracking for cycle
// prevention. The shape mirrors the original Rust backend's traversal CTE;
// unlike that version, relationshipType is bound as a query parameter
// instead of interpolated into the SQL text.
//
// asOf selects the valid-time instant relationships and targets are
// evaluated at: a relationship or entity is only traversable when
// valid_time_start <= asOf < valid_time_end, in addition to being the
// current transaction-time row. A nil asOf uses the wall clock.
func (s *Store) Traverse(ctx context.Context, tenantID, startID string, maxDepth int, relationshipType string, asOf *time.Time) ([]models.TraversalHit, error) {
	depth := maxDepth
	if depth > maxTraverseDepth {
		depth = maxTraverseDepth
	}
	if depth < 0 {
		depth = 0
	}

	at := time.Now().UTC()
	if asOf != nil {
		at = *asOf
	}
	atUnix := toUnix(at)

	relFilter := ""
	// Argument order must track the query text left to right: anchor
	// select, then the relationships join (tx-currency, valid-time bounds,
	// optional type filter), then the entities join (tx-currency,
	// valid-time bounds), then the depth bound.
	args := []interface{}{tenantID, startID, FarFutureUnix}
	args = append(args, FarFutureUnix, atUnix, atUnix)
	if relationshipType != "" {
		relFilter = "AND r.relationship_type = ?"
		args = append(args, relationshipType)
	}
	args = append(args, FarFutureUnix, atUnix, atUnix, depth)

	query := fmt.Sprintf(`
		WITH RECURSIVE graph_traversal AS (
			SELECT
				e.entity_id, e.tenant_id, e.name, e.entity_type, e.properties,
				e.valid_time_start, e.valid_time_end,
				e.transaction_time_start, e.transaction_time_end,
				0 AS depth,
				json_array(e.entity_id) AS path
			FROM entities e
			WHERE e.tenant_id = ? AND e.entity_id = ? AND e.transaction_time_end = ?

			UNION ALL

			SELECT
				e.entity_id, e.tenant_id, e.name, e.entity_type, e.properties,
				e.valid_time_start, e.valid_time_end,
				e.transaction_time_start, e.transaction_time_end,
				gt.depth + 1,
				json_insert(gt.path, '$[#]', e.entity_id)
			FROM graph_traversal gt
			JOIN relationships r ON r.from_entity = gt.entity_id
				AND r.tenant_id = gt.tenant_id AND r.transaction_time_end = ?
				AND r.valid_time_start <= ? AND r.valid_time_end > ?
				%s
			JOIN entities e ON e.entity_id = r.to_entity
				AND e.tenant_id = gt.tenant_id AND e.transaction_time_end = ?
				AND e.valid_time_start <= ? AND e.valid_time_end > ?
			WHERE gt.depth < ?
				AND NOT EXISTS (
					SELECT 1 FROM json_each(gt.path) WHERE json_each.value = e.entity_id
				)
		)
		SELECT entity_id, tenant_id, name, entity_type, properties,
		       valid_time_start, valid_time_end,
		       transaction_time_start, transaction_time_end,
		       depth, path
		FROM graph_traversal
		WHERE depth > 0
		ORDER BY depth, entity_id`, relFilter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("graphstore: traverse: %w", err)
	}
	defer rows.Close()

	var hits []models.TraversalHit
	for rows.Next() {
		var e models.Entity
		var propsJSON, pathJSON string
		var validStart, validEnd, txStart, txEnd int64
		var depth int

		if err := rows.Scan(&e.ID, &e.TenantID, &e.Name, &e.EntityType, &propsJSON,
			&validStart, &validEnd, &txStart, &txEnd, &depth, &pathJSON); err != nil {
			return nil, fmt.Errorf("graphstore: scan traversal row: %w", err)
		}
		if err := json.Unmarshal([]byte(propsJSON), &e.Properties); err != nil {
			return nil, fmt.Errorf("graphstore: unmarshal properties: %w", err)
		}
		var path []string
		if err := json.Unmarshal([]byte(pathJSON), &path); err != nil {
			return nil, fmt.Errorf("graphstore: unmarshal path: %w", err)
		}
		e.ValidTimeStart = fromUnix(validStart)
		e.ValidTimeEnd = fromUnix(validEnd)
		e.TransactionTimeStart = fromUnix(txStart)
		e.TransactionTimeEnd = fromUnix(txEnd)

		hits = append(hits, models.TraversalHit{Entity: e, Depth: depth, Path: path})
	}
	return hits, rows.Err()
}
