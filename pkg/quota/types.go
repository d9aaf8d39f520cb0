package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/clienthub/clienthub/pkg/billing"
	"github.com/clienthub/clienthub/pkg/plans"
)

// RateLimitWindow is the trailing window for the assistant rate limit
const RateLimitWindow = time.Hour

// Entitlement is the resolved commercial state the governor evaluates
// against: the effective plan for the tenant's current (or in-grace)
// subscription, or the starter/None default.
type Entitlement struct {
	TenantID       int64                    `json:"tenant_id"`
	Tier           plans.Tier               `json:"tier"`
	Status         billing.Status           `json:"status"`
	Limits         map[plans.Resource]int64 `json:"limits"`
	Features       []plans.Feature          `json:"features"`
	TrialExpiry    *time.Time               `json:"trial_expiry,omitempty"`
	GracePeriodEnd *time.Time               `json:"grace_period_end,omitempty"`

	definition *plans.Definition
}

// Counters is one tenant's maintained usage-counter row
type Counters struct {
	TenantID         int64     `json:"tenant_id"`
	SpacesCount      int64     `json:"spaces_count"`
	AIMessagesMonth  int64     `json:"ai_messages_month"`
	TokensUsedMonth  int64     `json:"tokens_used_month"`
	LastMonthlyReset time.Time `json:"last_monthly_reset"`
}

// UsageStore persists maintained counters and the raw assistant request log
type UsageStore interface {
	// CountersFor returns the tenant's counter row after applying the lazy
	// monthly reset: if lastMonthlyReset is not in now's (month, year), the
	// monthly counters are zeroed first. Creates the row when missing.
	CountersFor(ctx context.Context, tenantID int64, now time.Time) (*Counters, error)

	IncrementSpaces(ctx context.Context, tenantID int64, delta int64) error
	IncrementAIMessages(ctx context.Context, tenantID int64, n int64) error
	AddTokens(ctx context.Context, tenantID int64, tokens int64) error

	// LogAssistantRequest appends to the raw request log, which is the
	// reconciliation source for the sliding window.
	LogAssistantRequest(ctx context.Context, tenantID int64, at time.Time) error
	CountAssistantRequestsSince(ctx context.Context, tenantID int64, since time.Time) (int64, error)
}

// RateLimiter counts and records qualifying events in the trailing window
type RateLimiter interface {
	Count(ctx context.Context, tenantID int64, now time.Time) (int64, error)
	Record(ctx context.Context, tenantID int64, at time.Time) error
}

// QuotaExceededError is a denial from any of the three governance kinds.
// It carries everything the boundary needs to explain the denial.
type QuotaExceededError struct {
	Resource plans.Resource
	Current  int64
	Limit    int64
	// SuggestedTier is the next self-serve tier strictly above the current
	// one, empty when there is none.
	SuggestedTier plans.Tier
	// ContactSales is set when only a sales-led tier would lift the limit
	ContactSales bool
}

func (e *QuotaExceededError) Error() string {
	msg := fmt.Sprintf("quota exceeded for %s: %d/%d", e.Resource, e.Current, e.Limit)
	if e.SuggestedTier != "" {
		return msg + fmt.Sprintf(" (upgrade to %s)", e.SuggestedTier)
	}
	if e.ContactSales {
		return msg + " (contact sales)"
	}
	return msg
}

// FeatureNotAvailableError is a feature-gate denial naming the minimum tier
// that grants the flag.
type FeatureNotAvailableError struct {
	Feature      plans.Feature
	RequiredTier plans.Tier
	ContactSales bool
}

func (e *FeatureNotAvailableError) Error() string {
	if e.ContactSales {
		return fmt.Sprintf("feature %s requires an enterprise plan: contact sales", e.Feature)
	}
	return fmt.Sprintf("feature %s requires the %s plan or above", e.Feature, e.RequiredTier)
}
