package spaces

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clienthub/clienthub/pkg/billing"
	"github.com/clienthub/clienthub/pkg/observability"
	"github.com/clienthub/clienthub/pkg/plans"
	"github.com/clienthub/clienthub/pkg/quota"
)

type stubSubStore struct {
	billing.Store
}

func (stubSubStore) Current(ctx context.Context, tenantID int64) (*billing.Subscription, error) {
	return nil, billing.ErrNoSubscription
}

func (stubSubStore) LatestWithinGrace(ctx context.Context, tenantID int64) (*billing.Subscription, error) {
	return nil, billing.ErrNoSubscription
}

type stubUsageStore struct {
	spacesDelta int64
}

func (s *stubUsageStore) CountersFor(ctx context.Context, tenantID int64, now time.Time) (*quota.Counters, error) {
	return &quota.Counters{TenantID: tenantID, LastMonthlyReset: now}, nil
}

func (s *stubUsageStore) IncrementSpaces(ctx context.Context, tenantID int64, delta int64) error {
	s.spacesDelta += delta
	return nil
}

func (s *stubUsageStore) IncrementAIMessages(ctx context.Context, tenantID int64, n int64) error {
	return nil
}

func (s *stubUsageStore) AddTokens(ctx context.Context, tenantID int64, tokens int64) error {
	return nil
}

func (s *stubUsageStore) LogAssistantRequest(ctx context.Context, tenantID int64, at time.Time) error {
	return nil
}

func (s *stubUsageStore) CountAssistantRequestsSince(ctx context.Context, tenantID int64, since time.Time) (int64, error) {
	return 0, nil
}

func testService(t *testing.T) (*Service, sqlmock.Sqlmock, *stubUsageStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	usage := &stubUsageStore{}
	governor := quota.NewGovernor(plans.NewCatalog(), stubSubStore{}, usage, nil, nil, logger, nil)
	return NewService(db, governor), mock, usage
}

func TestCreate(t *testing.T) {
	t.Run("under the ceiling", func(t *testing.T) {
		svc, mock, usage := testService(t)
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1, \$2\)`).
			WithArgs(advisoryNamespace, int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM client_spaces WHERE tenant_id = \$1 AND NOT archived`).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectQuery(`INSERT INTO client_spaces \(tenant_id, name\)`).
			WithArgs(int64(42), "Acme Retainer").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(9, now))
		mock.ExpectCommit()

		space, err := svc.Create(context.Background(), 42, "Acme Retainer")
		require.NoError(t, err)
		assert.Equal(t, int64(9), space.ID)
		assert.Equal(t, "Acme Retainer", space.Name)
		assert.Equal(t, int64(1), usage.spacesDelta)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("at the ceiling", func(t *testing.T) {
		svc, mock, _ := testService(t)

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
			WithArgs(advisoryNamespace, int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM client_spaces`).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
		mock.ExpectRollback()

		_, err := svc.Create(context.Background(), 42, "One Too Many")
		var qerr *quota.QuotaExceededError
		require.ErrorAs(t, err, &qerr)
		assert.Equal(t, plans.ResourceClientSpaces, qerr.Resource)
		assert.Equal(t, int64(5), qerr.Limit)
		assert.Equal(t, plans.TierProfessional, qerr.SuggestedTier)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate name", func(t *testing.T) {
		svc, mock, _ := testService(t)

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
			WithArgs(advisoryNamespace, int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM client_spaces`).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery(`INSERT INTO client_spaces`).
			WithArgs(int64(42), "Acme Retainer").
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		_, err := svc.Create(context.Background(), 42, "Acme Retainer")
		assert.ErrorIs(t, err, ErrDuplicateName)
	})
}

func TestArchive(t *testing.T) {
	t.Run("releases the slot", func(t *testing.T) {
		svc, mock, usage := testService(t)

		mock.ExpectExec(`UPDATE client_spaces SET archived = TRUE`).
			WithArgs(int64(9), int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, svc.Archive(context.Background(), 42, 9))
		assert.Equal(t, int64(-1), usage.spacesDelta)
	})

	t.Run("missing or already archived", func(t *testing.T) {
		svc, mock, _ := testService(t)

		mock.ExpectExec(`UPDATE client_spaces SET archived = TRUE`).
			WithArgs(int64(99), int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, svc.Archive(context.Background(), 42, 99), sql.ErrNoRows)
	})
}

func TestList(t *testing.T) {
	svc, mock, _ := testService(t)
	now := time.Now()

	mock.ExpectQuery(`FROM client_spaces\s+WHERE tenant_id = \$1 AND NOT archived`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name", "archived", "created_at"}).
			AddRow(2, 42, "Beta Corp", false, now).
			AddRow(1, 42, "Acme Retainer", false, now.Add(-time.Hour)))

	spaces, err := svc.List(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, spaces, 2)
	assert.Equal(t, "Beta Corp", spaces[0].Name)
}
