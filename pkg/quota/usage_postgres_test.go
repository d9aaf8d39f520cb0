package quota

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUsageStore(t *testing.T) (*PostgresUsageStore, sqlmock.Sqlmock, fixedClock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	clock := fixedClock{now: time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)}
	return NewPostgresUsageStore(db, clock), mock, clock
}

func counterRow(tenantID, spaces, messages, tokens int64, reset time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"tenant_id", "spaces_count", "ai_messages_month", "tokens_used_month", "last_monthly_reset",
	}).AddRow(tenantID, spaces, messages, tokens, reset)
}

func TestCountersFor(t *testing.T) {
	store, mock, clock := testUsageStore(t)
	now := clock.now

	mock.ExpectExec(`INSERT INTO usage_counters \(tenant_id, last_monthly_reset\)`).
		WithArgs(int64(42), now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SET ai_messages_month = 0, tokens_used_month = 0`).
		WithArgs(int64(42), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT tenant_id, spaces_count, ai_messages_month, tokens_used_month, last_monthly_reset`).
		WithArgs(int64(42)).
		WillReturnRows(counterRow(42, 3, 0, 0, now))

	counters, err := store.CountersFor(context.Background(), 42, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counters.SpacesCount)
	assert.Equal(t, int64(0), counters.AIMessagesMonth)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementSpaces(t *testing.T) {
	store, mock, clock := testUsageStore(t)

	mock.ExpectExec(`SET spaces_count = GREATEST\(0, usage_counters\.spaces_count \+ \$2\)`).
		WithArgs(int64(42), int64(-1), clock.now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.IncrementSpaces(context.Background(), 42, -1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementAIMessagesAndTokens(t *testing.T) {
	store, mock, clock := testUsageStore(t)

	mock.ExpectExec(`SET ai_messages_month = usage_counters\.ai_messages_month \+ \$2`).
		WithArgs(int64(42), int64(1), clock.now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET tokens_used_month = usage_counters\.tokens_used_month \+ \$2`).
		WithArgs(int64(42), int64(850), clock.now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.IncrementAIMessages(context.Background(), 42, 1))
	require.NoError(t, store.AddTokens(context.Background(), 42, 850))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssistantRequestLog(t *testing.T) {
	store, mock, clock := testUsageStore(t)
	now := clock.now

	mock.ExpectExec(`INSERT INTO assistant_requests \(tenant_id, requested_at\)`).
		WithArgs(int64(42), now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM assistant_requests WHERE tenant_id = \$1 AND requested_at > \$2`).
		WithArgs(int64(42), now.Add(-time.Hour)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	require.NoError(t, store.LogAssistantRequest(context.Background(), 42, now))
	count, err := store.CountAssistantRequestsSince(context.Background(), 42, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSpacesCountReconciliation(t *testing.T) {
	store, mock, _ := testUsageStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM client_spaces WHERE tenant_id = \$1 AND NOT archived`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectExec(`SET spaces_count = \$2, updated_at = NOW\(\)`).
		WithArgs(int64(42), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	count, err := store.CountActiveSpaces(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	require.NoError(t, store.SetSpacesCount(context.Background(), 42, count))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneAssistantRequests(t *testing.T) {
	store, mock, clock := testUsageStore(t)
	cutoff := clock.now.Add(-requestLogRetention)

	mock.ExpectExec(`DELETE FROM assistant_requests WHERE requested_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 120))

	pruned, err := store.PruneAssistantRequests(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(120), pruned)
}
