package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clienthub/clienthub/pkg/tenants"
)

type stubTenantService struct {
	tenants.Service
	getByIDFunc func(ctx context.Context, id int64) (*tenants.Tenant, error)
}

func (s *stubTenantService) GetByID(ctx context.Context, id int64) (*tenants.Tenant, error) {
	return s.getByIDFunc(ctx, id)
}

func TestTenantContextMiddleware(t *testing.T) {
	activeTenant := &tenants.Tenant{ID: 42, ExternalID: "acme-co", Status: tenants.StatusActive}
	svc := &stubTenantService{
		getByIDFunc: func(ctx context.Context, id int64) (*tenants.Tenant, error) {
			switch id {
			case 42:
				return activeTenant, nil
			case 7:
				return &tenants.Tenant{ID: 7, Status: tenants.StatusSuspended}, nil
			default:
				return nil, tenants.ErrNotFound
			}
		},
	}

	var seen *tenants.Tenant
	handler := TenantContextMiddleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := TenantFromContext(r.Context())
		require.True(t, ok)
		seen = tenant
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("active tenant passes through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/spaces", nil)
		req.Header.Set(TenantIDHeader, "42")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, int64(42), seen.ID)
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/spaces", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unparseable header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/spaces", nil)
		req.Header.Set(TenantIDHeader, "acme")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/spaces", nil)
		req.Header.Set(TenantIDHeader, "999")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("suspended tenant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/spaces", nil)
		req.Header.Set(TenantIDHeader, "7")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "suspended")
	})
}

func TestTenantFromContextMissing(t *testing.T) {
	_, ok := TenantFromContext(context.Background())
	assert.False(t, ok)
}
