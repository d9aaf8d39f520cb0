package quota

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clienthub/clienthub/pkg/observability"
)

func expectCountersFor(mock sqlmock.Sqlmock, tenantID, messages int64, now time.Time) {
	mock.ExpectExec(`INSERT INTO usage_counters`).
		WithArgs(tenantID, now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SET ai_messages_month = 0, tokens_used_month = 0`).
		WithArgs(tenantID, now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT tenant_id, spaces_count`).
		WithArgs(tenantID).
		WillReturnRows(counterRow(tenantID, 0, messages, 0, now))
}

func TestReconcilerHealsDrift(t *testing.T) {
	store, mock, clock := testUsageStore(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	r := NewReconciler(store, clock, logger, nil)

	now := clock.now
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT tenant_id FROM usage_counters ORDER BY tenant_id`).
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}).AddRow(42))

	// Counter says 5, the request log says 7: the log wins. The space
	// counter says 0 while three spaces are live: the table wins.
	expectCountersFor(mock, 42, 5, now)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM assistant_requests\s+WHERE tenant_id = \$1 AND requested_at >= \$2 AND requested_at < \$3`).
		WithArgs(int64(42), monthStart, now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectExec(`SET ai_messages_month = \$2`).
		WithArgs(int64(42), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM client_spaces WHERE tenant_id = \$1 AND NOT archived`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectExec(`SET spaces_count = \$2`).
		WithArgs(int64(42), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(`DELETE FROM assistant_requests`).
		WithArgs(now.Add(-requestLogRetention)).
		WillReturnResult(sqlmock.NewResult(0, 10))

	require.NoError(t, r.Run(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcilerSkipsAlignedCounters(t *testing.T) {
	store, mock, clock := testUsageStore(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	r := NewReconciler(store, clock, logger, nil)

	now := clock.now
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT tenant_id FROM usage_counters ORDER BY tenant_id`).
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}).AddRow(42))

	expectCountersFor(mock, 42, 7, now)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM assistant_requests`).
		WithArgs(int64(42), monthStart, now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM client_spaces`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	// No healing updates expected; the sweep goes straight to pruning.
	mock.ExpectExec(`DELETE FROM assistant_requests`).
		WithArgs(now.Add(-requestLogRetention)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.Run(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcilerSkipsFailingTenant(t *testing.T) {
	store, mock, clock := testUsageStore(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	r := NewReconciler(store, clock, logger, nil)

	now := clock.now
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT tenant_id FROM usage_counters ORDER BY tenant_id`).
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}).AddRow(1).AddRow(2))

	// Tenant 1 fails at the counter read; tenant 2 still reconciles.
	mock.ExpectExec(`INSERT INTO usage_counters`).
		WithArgs(int64(1), now).
		WillReturnError(assert.AnError)

	expectCountersFor(mock, 2, 3, now)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM assistant_requests`).
		WithArgs(int64(2), monthStart, now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM client_spaces`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	mock.ExpectExec(`DELETE FROM assistant_requests`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.Run(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
