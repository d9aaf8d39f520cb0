package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clienthub/clienthub/pkg/plans"
	"github.com/clienthub/clienthub/pkg/tenants"
)

// Billing intervals accepted by checkout
const (
	IntervalMonth = "month"
	IntervalYear  = "year"
)

// ErrEnterpriseSalesLed is returned when a self-serve flow targets the
// Enterprise tier.
var ErrEnterpriseSalesLed = errors.New("enterprise plans are sales-led: contact sales")

// CheckoutRequest describes a checkout session to create
type CheckoutRequest struct {
	TenantID        int64      `json:"tenant_id"`
	TargetTier      plans.Tier `json:"target_tier"`
	BillingInterval string     `json:"billing_interval"`
	SuccessURL      string     `json:"success_url"`
	CancelURL       string     `json:"cancel_url"`
}

// CheckoutSession is the provider-hosted payment session
type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// CheckoutClient is the boundary to the payment provider's checkout API
type CheckoutClient interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
}

// CheckoutParams is the provider-side session request. Metadata is echoed
// back on the resulting webhook events and is how events are joined to a
// tenant.
type CheckoutParams struct {
	TenantExternalID string
	Tier             plans.Tier
	Interval         string
	PriceCents       int64
	SuccessURL       string
	CancelURL        string
}

// CheckoutService validates and creates checkout sessions
type CheckoutService struct {
	catalog *plans.Catalog
	tenants tenants.Service
	client  CheckoutClient
}

// NewCheckoutService creates a CheckoutService
func NewCheckoutService(catalog *plans.Catalog, tenantService tenants.Service, client CheckoutClient) *CheckoutService {
	return &CheckoutService{
		catalog: catalog,
		tenants: tenantService,
		client:  client,
	}
}

// Create validates the request and opens a provider checkout session.
// Enterprise is rejected: it is never a self-serve checkout target.
func (s *CheckoutService) Create(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error) {
	def, err := s.catalog.Get(req.TargetTier)
	if err != nil {
		return nil, err
	}
	if !def.SelfServe {
		return nil, ErrEnterpriseSalesLed
	}
	if req.BillingInterval != IntervalMonth && req.BillingInterval != IntervalYear {
		return nil, fmt.Errorf("invalid billing interval %q", req.BillingInterval)
	}

	tenant, err := s.tenants.GetByID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	session, err := s.client.CreateCheckoutSession(ctx, CheckoutParams{
		TenantExternalID: tenant.ExternalID,
		Tier:             req.TargetTier,
		Interval:         req.BillingInterval,
		PriceCents:       def.MonthlyPriceCents,
		SuccessURL:       req.SuccessURL,
		CancelURL:        req.CancelURL,
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// HTTPCheckoutClient calls the payment provider's REST API
type HTTPCheckoutClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPCheckoutClient creates a provider API client
func NewHTTPCheckoutClient(baseURL, apiKey string) *HTTPCheckoutClient {
	return &HTTPCheckoutClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CreateCheckoutSession opens a hosted checkout session with the provider
func (c *HTTPCheckoutClient) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", params.PriceCents))
	form.Set("line_items[0][price_data][recurring][interval]", params.Interval)
	form.Set("line_items[0][quantity]", "1")
	form.Set("subscription_data[metadata]["+MetadataTenantExternalID+"]", params.TenantExternalID)
	form.Set("subscription_data[metadata]["+MetadataTier+"]", string(params.Tier))
	form.Set("metadata["+MetadataTenantExternalID+"]", params.TenantExternalID)
	form.Set("metadata["+MetadataTier+"]", string(params.Tier))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &ExternalProviderError{Op: "create checkout session", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ExternalProviderError{Op: "create checkout session", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ExternalProviderError{
			Op:  "create checkout session",
			Err: fmt.Errorf("provider returned status %d", resp.StatusCode),
		}
	}

	var body struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &ExternalProviderError{Op: "decode checkout session", Err: err}
	}

	return &CheckoutSession{SessionID: body.ID, CheckoutURL: body.URL}, nil
}
