package tenants

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tenantCols = []string{
	"id", "external_id", "name", "status", "placeholder", "created_at", "updated_at",
}

func testService(t *testing.T) (*PostgresService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresService(db), mock
}

func TestCreate(t *testing.T) {
	svc, mock := testService(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO tenants \(external_id, name, status, placeholder\)`).
		WithArgs("acme-co", "Acme", StatusActive, false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(1, now, now))

	tenant := &Tenant{ExternalID: "acme-co", Name: "Acme"}
	require.NoError(t, svc.Create(context.Background(), tenant))
	assert.Equal(t, int64(1), tenant.ID)
	assert.Equal(t, StatusActive, tenant.Status, "status defaults to active")
}

func TestGetByExternalID(t *testing.T) {
	svc, mock := testService(t)
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(`FROM tenants\s+WHERE external_id = \$1`).
			WithArgs("acme-co").
			WillReturnRows(sqlmock.NewRows(tenantCols).
				AddRow(1, "acme-co", "Acme", StatusActive, false, now, now))

		tenant, err := svc.GetByExternalID(context.Background(), "acme-co")
		require.NoError(t, err)
		assert.Equal(t, int64(1), tenant.ID)
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectQuery(`FROM tenants\s+WHERE external_id = \$1`).
			WithArgs("ghost-co").
			WillReturnRows(sqlmock.NewRows(tenantCols))

		_, err := svc.GetByExternalID(context.Background(), "ghost-co")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSetStatus(t *testing.T) {
	svc, mock := testService(t)

	mock.ExpectExec(`UPDATE tenants SET status = \$1`).
		WithArgs(StatusSuspended, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, svc.SetStatus(context.Background(), 1, StatusSuspended))

	mock.ExpectExec(`UPDATE tenants SET status = \$1`).
		WithArgs(StatusSuspended, int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, svc.SetStatus(context.Background(), 99, StatusSuspended), ErrNotFound)
}

func TestEnsurePlaceholder(t *testing.T) {
	now := time.Now()

	t.Run("existing tenant is returned as-is", func(t *testing.T) {
		svc, mock := testService(t)
		mock.ExpectQuery(`FROM tenants\s+WHERE external_id = \$1`).
			WithArgs("acme-co").
			WillReturnRows(sqlmock.NewRows(tenantCols).
				AddRow(1, "acme-co", "Acme", StatusActive, false, now, now))

		tenant, err := svc.EnsurePlaceholder(context.Background(), "acme-co")
		require.NoError(t, err)
		assert.False(t, tenant.Placeholder)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing tenant gets a placeholder row", func(t *testing.T) {
		svc, mock := testService(t)
		mock.ExpectQuery(`FROM tenants\s+WHERE external_id = \$1`).
			WithArgs("new-co").
			WillReturnRows(sqlmock.NewRows(tenantCols))
		mock.ExpectQuery(`INSERT INTO tenants \(external_id, name, status, placeholder\)`).
			WithArgs("new-co", sqlmock.AnyArg(), StatusActive).
			WillReturnRows(sqlmock.NewRows(tenantCols).
				AddRow(2, "new-co", "pending-1a2b3c4d", StatusActive, true, now, now))

		tenant, err := svc.EnsurePlaceholder(context.Background(), "new-co")
		require.NoError(t, err)
		assert.True(t, tenant.Placeholder)
		assert.Equal(t, "new-co", tenant.ExternalID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
