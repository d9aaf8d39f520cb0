package plans

import "fmt"

// Tier represents a subscription plan tier
type Tier string

const (
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierBusiness     Tier = "business"
	TierEnterprise   Tier = "enterprise"
)

// tierOrder is the single source of truth for tier ordering
var tierOrder = []Tier{TierStarter, TierProfessional, TierBusiness, TierEnterprise}

// Position returns the ordinal position of the tier, or -1 for unknown tiers
func (t Tier) Position() int {
	for i, tier := range tierOrder {
		if tier == t {
			return i
		}
	}
	return -1
}

// Valid reports whether the tier is a registered tier
func (t Tier) Valid() bool {
	return t.Position() >= 0
}

// Compare returns -1, 0 or 1 as t orders below, equal to or above other.
// Unknown tiers order below every known tier.
func (t Tier) Compare(other Tier) int {
	a, b := t.Position(), other.Position()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// NextTier returns the tier strictly above t, or false if t is the top tier
// or unknown.
func NextTier(t Tier) (Tier, bool) {
	pos := t.Position()
	if pos < 0 || pos >= len(tierOrder)-1 {
		return "", false
	}
	return tierOrder[pos+1], true
}

// Resource identifies a metered or counted resource
type Resource string

const (
	// ResourceClientSpaces is the number of client spaces a tenant may have
	ResourceClientSpaces Resource = "client_spaces"
	// ResourceAIMessages is the number of assistant messages per calendar month
	ResourceAIMessages Resource = "ai_messages"
	// ResourceAssistantRequestsPerHour caps assistant requests in any trailing hour
	ResourceAssistantRequestsPerHour Resource = "assistant_requests_per_hour"
	// ResourceAITokensMonthly is the assistant token budget per calendar month.
	// A budget of 0 means the budget is disabled (unlimited).
	ResourceAITokensMonthly Resource = "ai_tokens_monthly"
)

// Feature identifies a plan-gated capability
type Feature string

const (
	FeatureAIAssistant       Feature = "ai_assistant"
	FeatureCustomBranding    Feature = "custom_branding"
	FeatureAPIAccess         Feature = "api_access"
	FeatureCrossTenantSearch Feature = "cross_tenant_search"
	FeatureSSO               Feature = "sso"
	FeatureAuditLog          Feature = "audit_log"
)

// Unlimited is the sentinel for a limit with no ceiling. It is distinct from
// zero: a zero limit denies everything, Unlimited allows everything.
const Unlimited int64 = -1

// Definition describes a plan tier: its limits, feature flags and pricing
type Definition struct {
	Tier             Tier               `json:"tier" yaml:"tier"`
	DisplayName      string             `json:"display_name" yaml:"display_name"`
	Limits           map[Resource]int64 `json:"limits" yaml:"limits"`
	Features         []Feature          `json:"features" yaml:"features"`
	MonthlyPriceCents int64             `json:"monthly_price_cents" yaml:"monthly_price_cents"`
	// SelfServe controls whether the tier is offered in self-serve listings
	// and as an upgrade target. Enterprise is sales-led.
	SelfServe bool `json:"self_serve" yaml:"self_serve"`
}

// Limit returns the configured limit for a resource, or 0 if the resource is
// not configured for this plan.
func (d *Definition) Limit(r Resource) int64 {
	return d.Limits[r]
}

// HasFeature reports whether the plan grants a feature flag
func (d *Definition) HasFeature(f Feature) bool {
	for _, feature := range d.Features {
		if feature == f {
			return true
		}
	}
	return false
}

// UnknownTierError indicates a lookup for a tier the catalog does not know
type UnknownTierError struct {
	Tier Tier
}

func (e *UnknownTierError) Error() string {
	return fmt.Sprintf("unknown plan tier: %q", e.Tier)
}
