package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/clienthub/clienthub/pkg/billing"
	"github.com/clienthub/clienthub/pkg/httputil"
	"github.com/clienthub/clienthub/pkg/middleware"
	"github.com/clienthub/clienthub/pkg/observability"
	"github.com/clienthub/clienthub/pkg/plans"
	"github.com/clienthub/clienthub/pkg/tenants"
)

// SignatureHeader carries the provider's HMAC signature over the raw body
const SignatureHeader = "Signature"

const defaultTrialLength = 14 * 24 * time.Hour

// handleWebhook receives billing provider events. The signature is checked
// against the raw bytes before anything is parsed; nothing is recorded for
// a request that fails verification or parsing. A handler failure returns
// 500 so the provider redelivers.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteValidationError(w, "unreadable request body")
		return
	}

	if err := s.processor.VerifySignature(payload, r.Header.Get(SignatureHeader)); err != nil {
		if s.metrics != nil {
			s.metrics.SignatureFailuresTotal.Inc()
		}
		httputil.WriteError(w, r, err)
		return
	}

	event, err := s.processor.ParseEvent(payload)
	if err != nil {
		httputil.WriteValidationError(w, "unparseable event payload")
		return
	}

	if err := s.processor.Process(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).
			WithError(err).
			WithField("event_id", event.ID).
			Error("webhook processing failed")
		httputil.WriteErrorCode(w, http.StatusInternalServerError, httputil.CodeInternal, "event processing failed")
		return
	}

	httputil.WriteSuccess(w, map[string]bool{"received": true})
}

// PlanView is the wire form of a plan definition
type PlanView struct {
	Tier              plans.Tier               `json:"tier"`
	DisplayName       string                   `json:"display_name"`
	Limits            map[plans.Resource]int64 `json:"limits"`
	Features          []plans.Feature          `json:"features"`
	MonthlyPriceCents int64                    `json:"monthly_price_cents"`
	SelfServe         bool                     `json:"self_serve"`
	ContactSales      bool                     `json:"contact_sales,omitempty"`
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	defs := s.catalog.ListAvailable(true)
	out := make([]PlanView, 0, len(defs))
	for _, def := range defs {
		out = append(out, PlanView{
			Tier:              def.Tier,
			DisplayName:       def.DisplayName,
			Limits:            def.Limits,
			Features:          def.Features,
			MonthlyPriceCents: def.MonthlyPriceCents,
			SelfServe:         def.SelfServe,
			ContactSales:      !def.SelfServe,
		})
	}
	httputil.WriteSuccess(w, map[string]interface{}{"plans": out})
}

// CheckoutRequestBody is the self-serve checkout request
type CheckoutRequestBody struct {
	TargetTier      plans.Tier `json:"target_tier"`
	BillingInterval string     `json:"billing_interval"`
	SuccessURL      string     `json:"success_url"`
	CancelURL       string     `json:"cancel_url"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	tenant := mustTenant(r)

	var body CheckoutRequestBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	if !httputil.RequireNonEmpty(w, string(body.TargetTier), "target_tier") {
		return
	}
	if !httputil.RequireNonEmpty(w, body.SuccessURL, "success_url") {
		return
	}
	if !httputil.RequireNonEmpty(w, body.CancelURL, "cancel_url") {
		return
	}
	if body.BillingInterval == "" {
		body.BillingInterval = billing.IntervalMonth
	}

	session, err := s.checkout.Create(r.Context(), &billing.CheckoutRequest{
		TenantID:        tenant.ID,
		TargetTier:      body.TargetTier,
		BillingInterval: body.BillingInterval,
		SuccessURL:      body.SuccessURL,
		CancelURL:       body.CancelURL,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, session)
}

func (s *Server) handleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	tenant := mustTenant(r)

	ent, err := s.governor.EntitlementFor(r.Context(), tenant.ID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ent)
}

// TrialRequestBody starts a local trial subscription
type TrialRequestBody struct {
	Tier plans.Tier `json:"tier"`
	Days int        `json:"days,omitempty"`
}

func (s *Server) handleStartTrial(w http.ResponseWriter, r *http.Request) {
	tenant := mustTenant(r)

	var body TrialRequestBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	def, err := s.catalog.Get(body.Tier)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if !def.SelfServe {
		httputil.WriteError(w, r, billing.ErrEnterpriseSalesLed)
		return
	}

	if _, err := s.subs.Current(r.Context(), tenant.ID); err == nil {
		httputil.WriteErrorCode(w, http.StatusConflict, "already_subscribed",
			"tenant already has a current subscription")
		return
	} else if !errors.Is(err, billing.ErrNoSubscription) {
		httputil.WriteError(w, r, err)
		return
	}

	length := defaultTrialLength
	if body.Days > 0 {
		length = time.Duration(body.Days) * 24 * time.Hour
	}

	sub, err := s.subs.StartTrial(r.Context(), tenant.ID, body.Tier, length)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.governor.InvalidateEntitlement(tenant.ID)
	httputil.WriteCreated(w, sub)
}

// ChangeTierRequestBody changes the tier of a local-only subscription
type ChangeTierRequestBody struct {
	TargetTier plans.Tier `json:"target_tier"`
}

func (s *Server) handleChangeTier(w http.ResponseWriter, r *http.Request) {
	tenant := mustTenant(r)

	var body ChangeTierRequestBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	def, err := s.catalog.Get(body.TargetTier)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if !def.SelfServe {
		httputil.WriteError(w, r, billing.ErrEnterpriseSalesLed)
		return
	}

	sub, err := s.subs.Current(r.Context(), tenant.ID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	if err := s.subs.ChangeTierLocally(r.Context(), sub.ID, body.TargetTier); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.governor.InvalidateEntitlement(tenant.ID)
	httputil.WriteSuccess(w, map[string]interface{}{
		"subscription_id": sub.ID,
		"tier":            body.TargetTier,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	tenant := mustTenant(r)

	sub, err := s.subs.Current(r.Context(), tenant.ID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	if err := s.subs.CancelLocally(r.Context(), sub.ID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.governor.InvalidateEntitlement(tenant.ID)
	httputil.WriteSuccess(w, map[string]interface{}{
		"subscription_id": sub.ID,
		"status":          billing.StatusCancelled,
	})
}

// mustTenant returns the tenant placed by the identity middleware. Routes
// using it are always registered behind TenantContextMiddleware.
func mustTenant(r *http.Request) *tenants.Tenant {
	tenant, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		panic("tenant middleware not installed")
	}
	return tenant
}
