package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/clienthub/clienthub/pkg/billing"
	"github.com/clienthub/clienthub/pkg/observability"
	"github.com/clienthub/clienthub/pkg/plans"
	"github.com/clienthub/clienthub/pkg/quota"
	"github.com/clienthub/clienthub/pkg/tenants"
)

// Error codes surfaced in the wire envelope
const (
	CodeValidation          = "validation_error"
	CodeUnauthorized        = "unauthorized"
	CodeNotFound            = "not_found"
	CodeQuotaExceeded       = "quota_exceeded"
	CodeRateLimited         = "rate_limited"
	CodeFeatureNotAvailable = "feature_not_available"
	CodeInvalidSignature    = "invalid_signature"
	CodeExternallyManaged   = "externally_managed"
	CodeContactSales        = "contact_sales"
	CodeProviderUnavailable = "provider_unavailable"
	CodeInternal            = "internal_error"
)

// ErrorResponse is the wire error envelope
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 response with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a 201 response with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteErrorCode writes the error envelope with the given status and code
func WriteErrorCode(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// WriteValidationError writes a 400 validation envelope
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusBadRequest, CodeValidation, message)
}

// WriteError translates a domain error into the wire envelope. Typed errors
// map to stable codes and statuses; anything unrecognized becomes a 500
// carrying a correlation id, with the underlying error logged rather than
// leaked.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		WriteErrorCode(w, http.StatusBadRequest, CodeValidation, verr.Error())
		return
	}

	var aerr *AuthError
	if errors.As(err, &aerr) {
		WriteErrorCode(w, http.StatusUnauthorized, CodeUnauthorized, aerr.Error())
		return
	}

	var nerr *NotFoundError
	if errors.As(err, &nerr) {
		WriteErrorCode(w, http.StatusNotFound, CodeNotFound, nerr.Error())
		return
	}

	var qerr *quota.QuotaExceededError
	if errors.As(err, &qerr) {
		writeQuotaDenial(w, qerr)
		return
	}

	var ferr *quota.FeatureNotAvailableError
	if errors.As(err, &ferr) {
		details := map[string]interface{}{"feature": string(ferr.Feature)}
		if ferr.ContactSales {
			details["contact_sales"] = true
		} else if ferr.RequiredTier != "" {
			details["required_tier"] = string(ferr.RequiredTier)
		}
		WriteJSON(w, http.StatusForbidden, ErrorResponse{
			Code:    CodeFeatureNotAvailable,
			Message: ferr.Error(),
			Details: details,
		})
		return
	}

	var serr *billing.SignatureInvalidError
	if errors.As(err, &serr) {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidSignature, "invalid webhook signature")
		return
	}

	var uerr *billing.UseExternalCheckoutError
	if errors.As(err, &uerr) {
		WriteErrorCode(w, http.StatusConflict, CodeExternallyManaged, uerr.Error())
		return
	}

	var terr *plans.UnknownTierError
	if errors.As(err, &terr) {
		WriteErrorCode(w, http.StatusBadRequest, CodeValidation, terr.Error())
		return
	}

	var perr *billing.ExternalProviderError
	if errors.As(err, &perr) {
		WriteErrorCode(w, http.StatusBadGateway, CodeProviderUnavailable, "payment provider request failed")
		return
	}

	switch {
	case errors.Is(err, billing.ErrEnterpriseSalesLed):
		WriteErrorCode(w, http.StatusBadRequest, CodeContactSales, err.Error())
	case errors.Is(err, billing.ErrNoSubscription):
		WriteErrorCode(w, http.StatusNotFound, CodeNotFound, "no subscription")
	case errors.Is(err, tenants.ErrNotFound):
		WriteErrorCode(w, http.StatusNotFound, CodeNotFound, "tenant not found")
	default:
		correlationID := uuid.NewString()
		observability.FromContext(r.Context()).
			WithError(err).
			WithField("correlation_id", correlationID).
			Error("request failed")
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Code:    CodeInternal,
			Message: "internal error",
			Details: map[string]interface{}{"correlation_id": correlationID},
		})
	}
}

func writeQuotaDenial(w http.ResponseWriter, qerr *quota.QuotaExceededError) {
	status := http.StatusForbidden
	code := CodeQuotaExceeded
	if qerr.Resource == plans.ResourceAssistantRequestsPerHour {
		status = http.StatusTooManyRequests
		code = CodeRateLimited
	}

	details := map[string]interface{}{
		"resource": string(qerr.Resource),
		"usage":    qerr.Current,
		"limit":    qerr.Limit,
	}
	if qerr.SuggestedTier != "" {
		details["suggested_tier"] = string(qerr.SuggestedTier)
	}
	if qerr.ContactSales {
		details["contact_sales"] = true
	}

	WriteJSON(w, status, ErrorResponse{
		Code:    code,
		Message: qerr.Error(),
		Details: details,
	})
}
