package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/clienthub/clienthub/pkg/plans"
)

// Status represents the internal subscription status
type Status string

const (
	StatusNone      Status = "none"
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// IsEntitled reports whether a status grants the plan's entitlements.
// Trial and Active are equally entitled; Suspended and Cancelled are not
// (grace-period handling for Cancelled lives in the quota governor).
func IsEntitled(s Status) bool {
	return s == StatusActive || s == StatusTrial
}

// MapExternalStatus maps a provider status string to the internal enum.
// The second return is false for unrecognized strings, which callers must
// treat as "leave the stored status unchanged" so a future provider status
// never clobbers local state.
func MapExternalStatus(external string) (Status, bool) {
	switch external {
	case "active":
		return StatusActive, true
	case "trialing":
		return StatusTrial, true
	case "canceled":
		return StatusCancelled, true
	case "past_due", "unpaid":
		return StatusSuspended, true
	default:
		return "", false
	}
}

// GracePeriod is how long a cancelled subscription retains its prior
// entitlements.
const GracePeriod = 7 * 24 * time.Hour

// Subscription represents one tenant subscription row. A tenant may have
// several rows over time; rows for a different external subscription id are
// never overwritten, a new provider subscription always creates a new row.
type Subscription struct {
	ID             int64      `json:"id"`
	TenantID       int64      `json:"tenant_id"`
	Tier           plans.Tier `json:"tier"`
	Status         Status     `json:"status"`
	StartDate      time.Time  `json:"start_date"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	TrialExpiry    *time.Time `json:"trial_expiry,omitempty"`
	GracePeriodEnd *time.Time `json:"grace_period_end,omitempty"`
	// ExternalCustomerID and ExternalSubscriptionID are the provider-side
	// identifiers. Both empty for local-only (trial) subscriptions.
	ExternalCustomerID     string    `json:"external_customer_id,omitempty"`
	ExternalSubscriptionID string    `json:"external_subscription_id,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// IsLocalOnly reports whether the subscription is managed entirely locally
func (s *Subscription) IsLocalOnly() bool {
	return s.ExternalSubscriptionID == ""
}

// LedgerEntry is one processed billing event in the idempotency ledger
type LedgerEntry struct {
	EventID     string    `json:"event_id"`
	Type        string    `json:"type"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Event is a verified, parsed provider event
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData wraps the provider's event payload
type EventData struct {
	Object EventObject `json:"object"`
}

// EventObject is the provider object an event describes. Field meaning
// depends on the event type: for subscription events ID is the external
// subscription id; for checkout sessions and invoices, Subscription carries
// it instead.
type EventObject struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer,omitempty"`
	Subscription string            `json:"subscription,omitempty"`
	Status       string            `json:"status,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Metadata keys the provider is configured to attach at checkout
const (
	MetadataTenantExternalID = "tenant_external_id"
	MetadataTier             = "tier"
)

// Clock abstracts wall-clock time so grace periods and lazy monthly resets
// are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ErrNoSubscription indicates the tenant has no qualifying subscription row
var ErrNoSubscription = errors.New("no current subscription")

// SignatureInvalidError indicates a webhook payload failed HMAC verification
type SignatureInvalidError struct {
	Reason string
}

func (e *SignatureInvalidError) Error() string {
	return "invalid webhook signature: " + e.Reason
}

// UseExternalCheckoutError indicates a local mutation was attempted on a
// subscription the external provider owns.
type UseExternalCheckoutError struct {
	SubscriptionID int64
}

func (e *UseExternalCheckoutError) Error() string {
	return fmt.Sprintf("subscription %d is managed by the payment provider; use the checkout or billing portal flow", e.SubscriptionID)
}

// ExternalProviderError wraps a failed call to the payment provider
type ExternalProviderError struct {
	Op  string
	Err error
}

func (e *ExternalProviderError) Error() string {
	return fmt.Sprintf("payment provider %s failed: %v", e.Op, e.Err)
}

func (e *ExternalProviderError) Unwrap() error { return e.Err }
