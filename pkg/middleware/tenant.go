package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/clienthub/clienthub/pkg/httputil"
	"github.com/clienthub/clienthub/pkg/observability"
	"github.com/clienthub/clienthub/pkg/tenants"
)

// TenantIDHeader carries the authenticated tenant id, set by the fronting
// identity layer.
const TenantIDHeader = "X-Tenant-ID"

type tenantContextKey string

const tenantKey tenantContextKey = "tenant"

// TenantFromContext returns the tenant placed by TenantContextMiddleware
func TenantFromContext(ctx context.Context) (*tenants.Tenant, bool) {
	tenant, ok := ctx.Value(tenantKey).(*tenants.Tenant)
	return tenant, ok
}

// WithTenant places a tenant in the context, for tests and internal callers
func WithTenant(ctx context.Context, tenant *tenants.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, tenant)
}

// TenantContextMiddleware resolves the tenant header to a stored tenant and
// rejects requests without a usable identity. Suspended and deleted tenants
// are turned away here, before any handler runs.
func TenantContextMiddleware(tenantService tenants.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(TenantIDHeader)
			if header == "" {
				httputil.WriteError(w, r, &httputil.AuthError{Message: "missing tenant identity"})
				return
			}

			tenantID, err := strconv.ParseInt(header, 10, 64)
			if err != nil {
				httputil.WriteError(w, r, &httputil.AuthError{Message: "invalid tenant identity"})
				return
			}

			tenant, err := tenantService.GetByID(r.Context(), tenantID)
			if err != nil {
				httputil.WriteError(w, r, &httputil.AuthError{Message: "unknown tenant"})
				return
			}
			if tenant.Status != tenants.StatusActive {
				httputil.WriteError(w, r, &httputil.AuthError{Message: "tenant is " + string(tenant.Status)})
				return
			}

			ctx := WithTenant(r.Context(), tenant)
			ctx = observability.WithTenantID(ctx, tenant.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
