package quota

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clienthub/clienthub/pkg/billing"
)

// PostgresUsageStore implements UsageStore using PostgreSQL. Counters live
// in one row per tenant; assistant requests additionally land in a raw
// timestamped log that backs the sliding window and reconciliation.
type PostgresUsageStore struct {
	db    *sql.DB
	clock billing.Clock
}

// NewPostgresUsageStore creates a new PostgresUsageStore
func NewPostgresUsageStore(db *sql.DB, clock billing.Clock) *PostgresUsageStore {
	if clock == nil {
		clock = billing.SystemClock{}
	}
	return &PostgresUsageStore{db: db, clock: clock}
}

// CountersFor returns the tenant's counter row, creating it on first use.
// The lazy monthly reset runs first: a row whose last reset falls outside
// now's calendar month has its monthly counters zeroed before the read.
func (s *PostgresUsageStore) CountersFor(ctx context.Context, tenantID int64, now time.Time) (*Counters, error) {
	insert := `
		INSERT INTO usage_counters (tenant_id, last_monthly_reset)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, insert, tenantID, now); err != nil {
		return nil, fmt.Errorf("failed to initialize usage counters: %w", err)
	}

	reset := `
		UPDATE usage_counters
		SET ai_messages_month = 0, tokens_used_month = 0,
		    last_monthly_reset = $2, updated_at = NOW()
		WHERE tenant_id = $1
		  AND date_trunc('month', last_monthly_reset) <> date_trunc('month', $2::timestamptz)
	`
	if _, err := s.db.ExecContext(ctx, reset, tenantID, now); err != nil {
		return nil, fmt.Errorf("failed to reset monthly counters: %w", err)
	}

	query := `
		SELECT tenant_id, spaces_count, ai_messages_month, tokens_used_month, last_monthly_reset
		FROM usage_counters
		WHERE tenant_id = $1
	`
	counters := &Counters{}
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&counters.TenantID, &counters.SpacesCount, &counters.AIMessagesMonth,
		&counters.TokensUsedMonth, &counters.LastMonthlyReset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage counters: %w", err)
	}
	return counters, nil
}

// IncrementSpaces adjusts the live space count. delta may be negative when
// a space is archived; the count never drops below zero.
func (s *PostgresUsageStore) IncrementSpaces(ctx context.Context, tenantID int64, delta int64) error {
	query := `
		INSERT INTO usage_counters (tenant_id, spaces_count, last_monthly_reset)
		VALUES ($1, GREATEST(0, $2), $3)
		ON CONFLICT (tenant_id) DO UPDATE
		SET spaces_count = GREATEST(0, usage_counters.spaces_count + $2),
		    updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, tenantID, delta, s.clock.Now()); err != nil {
		return fmt.Errorf("failed to update space count: %w", err)
	}
	return nil
}

// IncrementAIMessages adds to the calendar-month message counter
func (s *PostgresUsageStore) IncrementAIMessages(ctx context.Context, tenantID int64, n int64) error {
	query := `
		INSERT INTO usage_counters (tenant_id, ai_messages_month, last_monthly_reset)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO UPDATE
		SET ai_messages_month = usage_counters.ai_messages_month + $2,
		    updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, tenantID, n, s.clock.Now()); err != nil {
		return fmt.Errorf("failed to update message count: %w", err)
	}
	return nil
}

// AddTokens adds to the calendar-month token counter
func (s *PostgresUsageStore) AddTokens(ctx context.Context, tenantID int64, tokens int64) error {
	query := `
		INSERT INTO usage_counters (tenant_id, tokens_used_month, last_monthly_reset)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO UPDATE
		SET tokens_used_month = usage_counters.tokens_used_month + $2,
		    updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, tenantID, tokens, s.clock.Now()); err != nil {
		return fmt.Errorf("failed to update token count: %w", err)
	}
	return nil
}

// LogAssistantRequest appends one row to the raw request log
func (s *PostgresUsageStore) LogAssistantRequest(ctx context.Context, tenantID int64, at time.Time) error {
	query := `INSERT INTO assistant_requests (tenant_id, requested_at) VALUES ($1, $2)`
	if _, err := s.db.ExecContext(ctx, query, tenantID, at); err != nil {
		return fmt.Errorf("failed to log assistant request: %w", err)
	}
	return nil
}

// CountAssistantRequestsSince counts logged requests strictly after since
func (s *PostgresUsageStore) CountAssistantRequestsSince(ctx context.Context, tenantID int64, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM assistant_requests WHERE tenant_id = $1 AND requested_at > $2`
	var count int64
	if err := s.db.QueryRowContext(ctx, query, tenantID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count assistant requests: %w", err)
	}
	return count, nil
}

// CountAssistantRequestsBetween counts logged requests in [from, to)
func (s *PostgresUsageStore) CountAssistantRequestsBetween(ctx context.Context, tenantID int64, from, to time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM assistant_requests
		WHERE tenant_id = $1 AND requested_at >= $2 AND requested_at < $3
	`
	var count int64
	if err := s.db.QueryRowContext(ctx, query, tenantID, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count assistant requests: %w", err)
	}
	return count, nil
}

// TenantsWithCounters lists tenant ids that have a counter row
func (s *PostgresUsageStore) TenantsWithCounters(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tenant_id FROM usage_counters ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant counters: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetMonthlyMessages overwrites the monthly message counter, used by the
// reconciler to heal drift against the request log.
func (s *PostgresUsageStore) SetMonthlyMessages(ctx context.Context, tenantID int64, n int64) error {
	query := `
		UPDATE usage_counters
		SET ai_messages_month = $2, updated_at = NOW()
		WHERE tenant_id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, tenantID, n); err != nil {
		return fmt.Errorf("failed to set message count: %w", err)
	}
	return nil
}

// CountActiveSpaces counts the tenant's non-archived spaces from the source
// table, used by the reconciler to heal the mirrored counter.
func (s *PostgresUsageStore) CountActiveSpaces(ctx context.Context, tenantID int64) (int64, error) {
	query := `SELECT COUNT(*) FROM client_spaces WHERE tenant_id = $1 AND NOT archived`
	var count int64
	if err := s.db.QueryRowContext(ctx, query, tenantID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count client spaces: %w", err)
	}
	return count, nil
}

// SetSpacesCount overwrites the live space counter
func (s *PostgresUsageStore) SetSpacesCount(ctx context.Context, tenantID int64, n int64) error {
	query := `
		UPDATE usage_counters
		SET spaces_count = $2, updated_at = NOW()
		WHERE tenant_id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, tenantID, n); err != nil {
		return fmt.Errorf("failed to set space count: %w", err)
	}
	return nil
}

// PruneAssistantRequests deletes log rows older than the cutoff and returns
// how many were removed.
func (s *PostgresUsageStore) PruneAssistantRequests(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM assistant_requests WHERE requested_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune assistant requests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read pruned row count: %w", err)
	}
	return n, nil
}
