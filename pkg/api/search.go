package api

import (
	"context"
	"fmt"
)

// searchTenant runs the global search over spaces and assistant messages.
// Plain ILIKE is adequate at current data sizes; both tables are indexed by
// tenant so the scan is bounded per caller.
func (s *Server) searchTenant(ctx context.Context, tenantID int64, query string, limit int) ([]SearchResult, error) {
	pattern := "%" + query + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, id, space_id, snippet FROM (
			SELECT 'space' AS kind, id, NULL::bigint AS space_id, name AS snippet, created_at
			FROM client_spaces
			WHERE tenant_id = $1 AND NOT archived AND name ILIKE $2
			UNION ALL
			SELECT 'message' AS kind, id, space_id, LEFT(prompt, 200) AS snippet, created_at
			FROM assistant_messages
			WHERE tenant_id = $1 AND prompt ILIKE $2
		) hits
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var res SearchResult
		if err := rows.Scan(&res.Kind, &res.ID, &res.SpaceID, &res.Snippet); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
