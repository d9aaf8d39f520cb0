package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clienthub/clienthub/pkg/billing"
	"github.com/clienthub/clienthub/pkg/plans"
	"github.com/clienthub/clienthub/pkg/quota"
	"github.com/clienthub/clienthub/pkg/tenants"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "validation error",
			err:        &ValidationError{Field: "tier", Message: "required"},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidation,
		},
		{
			name:       "auth error",
			err:        &AuthError{Message: "missing tenant identity"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   CodeUnauthorized,
		},
		{
			name:       "not found error",
			err:        &NotFoundError{Resource: "space", ID: "9"},
			wantStatus: http.StatusNotFound,
			wantCode:   CodeNotFound,
		},
		{
			name:       "ceiling denial",
			err:        &quota.QuotaExceededError{Resource: plans.ResourceClientSpaces, Current: 5, Limit: 5},
			wantStatus: http.StatusForbidden,
			wantCode:   CodeQuotaExceeded,
		},
		{
			name:       "rate limit denial",
			err:        &quota.QuotaExceededError{Resource: plans.ResourceAssistantRequestsPerHour, Current: 20, Limit: 20},
			wantStatus: http.StatusTooManyRequests,
			wantCode:   CodeRateLimited,
		},
		{
			name:       "feature gate denial",
			err:        &quota.FeatureNotAvailableError{Feature: plans.FeatureCrossTenantSearch, RequiredTier: plans.TierBusiness},
			wantStatus: http.StatusForbidden,
			wantCode:   CodeFeatureNotAvailable,
		},
		{
			name:       "invalid signature",
			err:        &billing.SignatureInvalidError{Reason: "signature mismatch"},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidSignature,
		},
		{
			name:       "provider-managed subscription",
			err:        &billing.UseExternalCheckoutError{SubscriptionID: 7},
			wantStatus: http.StatusConflict,
			wantCode:   CodeExternallyManaged,
		},
		{
			name:       "unknown tier",
			err:        &plans.UnknownTierError{Tier: "platinum"},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidation,
		},
		{
			name:       "provider unavailable",
			err:        &billing.ExternalProviderError{Op: "create checkout session", Err: errors.New("timeout")},
			wantStatus: http.StatusBadGateway,
			wantCode:   CodeProviderUnavailable,
		},
		{
			name:       "enterprise is sales-led",
			err:        billing.ErrEnterpriseSalesLed,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeContactSales,
		},
		{
			name:       "no subscription",
			err:        billing.ErrNoSubscription,
			wantStatus: http.StatusNotFound,
			wantCode:   CodeNotFound,
		},
		{
			name:       "tenant not found",
			err:        tenants.ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			WriteError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestWriteErrorQuotaDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/spaces", nil)
	WriteError(rec, req, &quota.QuotaExceededError{
		Resource:      plans.ResourceClientSpaces,
		Current:       5,
		Limit:         5,
		SuggestedTier: plans.TierProfessional,
	})

	resp := decodeError(t, rec)
	assert.Equal(t, "client_spaces", resp.Details["resource"])
	assert.Equal(t, float64(5), resp.Details["usage"])
	assert.Equal(t, float64(5), resp.Details["limit"])
	assert.Equal(t, "professional", resp.Details["suggested_tier"])
	assert.NotContains(t, resp.Details, "contact_sales")
}

func TestWriteErrorInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	WriteError(rec, req, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, CodeInternal, resp.Code)
	assert.Equal(t, "internal error", resp.Message)
	assert.NotEmpty(t, resp.Details["correlation_id"])
	assert.NotContains(t, rec.Body.String(), "connection refused", "internals never leak to the client")
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteSuccess(rec, map[string]bool{"received": true}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
}
