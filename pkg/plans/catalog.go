package plans

import (
	"sort"
	"sync/atomic"
)

// Catalog is a read-only registry of plan definitions. The definition set is
// immutable once built; Reload swaps the whole set atomically so readers
// never observe a partially updated catalog.
type Catalog struct {
	defs atomic.Pointer[map[Tier]*Definition]
}

// NewCatalog creates a catalog with the built-in default plans
func NewCatalog() *Catalog {
	c := &Catalog{}
	c.replace(DefaultDefinitions())
	return c
}

// NewCatalogWith creates a catalog from an explicit definition set
func NewCatalogWith(defs map[Tier]*Definition) *Catalog {
	c := &Catalog{}
	c.replace(defs)
	return c
}

func (c *Catalog) replace(defs map[Tier]*Definition) {
	copied := make(map[Tier]*Definition, len(defs))
	for tier, def := range defs {
		copied[tier] = def
	}
	c.defs.Store(&copied)
}

// Get returns the definition for a tier
func (c *Catalog) Get(tier Tier) (*Definition, error) {
	defs := *c.defs.Load()
	def, ok := defs[tier]
	if !ok {
		return nil, &UnknownTierError{Tier: tier}
	}
	return def, nil
}

// ListAvailable returns definitions ordered ascending by tier position.
// Enterprise (and any other non-self-serve tier) is excluded unless
// includeEnterprise is set.
func (c *Catalog) ListAvailable(includeEnterprise bool) []*Definition {
	defs := *c.defs.Load()
	out := make([]*Definition, 0, len(defs))
	for _, def := range defs {
		if !def.SelfServe && !includeEnterprise {
			continue
		}
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Tier.Position() < out[j].Tier.Position()
	})
	return out
}

// MinimumTierFor returns the lowest tier whose plan grants the feature
func (c *Catalog) MinimumTierFor(feature Feature) (Tier, bool) {
	defs := *c.defs.Load()
	best := Tier("")
	found := false
	for tier, def := range defs {
		if !def.HasFeature(feature) {
			continue
		}
		if !found || tier.Compare(best) < 0 {
			best = tier
			found = true
		}
	}
	return best, found
}

// SuggestUpgrade returns the next self-serve tier strictly above current.
// It returns false when current is already the top tier or when the only
// tier above is not self-serve (sales-led).
func (c *Catalog) SuggestUpgrade(current Tier) (Tier, bool) {
	next, ok := NextTier(current)
	if !ok {
		return "", false
	}
	def, err := c.Get(next)
	if err != nil || !def.SelfServe {
		return "", false
	}
	return next, true
}

// DefaultDefinitions returns the built-in plan set
func DefaultDefinitions() map[Tier]*Definition {
	return map[Tier]*Definition{
		TierStarter: {
			Tier:        TierStarter,
			DisplayName: "Starter",
			Limits: map[Resource]int64{
				ResourceClientSpaces:             5,
				ResourceAIMessages:               100,
				ResourceAssistantRequestsPerHour: 20,
				ResourceAITokensMonthly:          50_000,
			},
			Features:          []Feature{FeatureAIAssistant},
			MonthlyPriceCents: 0,
			SelfServe:         true,
		},
		TierProfessional: {
			Tier:        TierProfessional,
			DisplayName: "Professional",
			Limits: map[Resource]int64{
				ResourceClientSpaces:             25,
				ResourceAIMessages:               1000,
				ResourceAssistantRequestsPerHour: 60,
				ResourceAITokensMonthly:          500_000,
			},
			Features:          []Feature{FeatureAIAssistant, FeatureCustomBranding},
			MonthlyPriceCents: 4900,
			SelfServe:         true,
		},
		TierBusiness: {
			Tier:        TierBusiness,
			DisplayName: "Business",
			Limits: map[Resource]int64{
				ResourceClientSpaces:             100,
				ResourceAIMessages:               5000,
				ResourceAssistantRequestsPerHour: 120,
				ResourceAITokensMonthly:          2_000_000,
			},
			Features: []Feature{
				FeatureAIAssistant, FeatureCustomBranding,
				FeatureAPIAccess, FeatureCrossTenantSearch,
			},
			MonthlyPriceCents: 14900,
			SelfServe:         true,
		},
		TierEnterprise: {
			Tier:        TierEnterprise,
			DisplayName: "Enterprise",
			Limits: map[Resource]int64{
				ResourceClientSpaces:             Unlimited,
				ResourceAIMessages:               Unlimited,
				ResourceAssistantRequestsPerHour: 600,
				// 0 disables the token budget entirely
				ResourceAITokensMonthly: 0,
			},
			Features: []Feature{
				FeatureAIAssistant, FeatureCustomBranding,
				FeatureAPIAccess, FeatureCrossTenantSearch,
				FeatureSSO, FeatureAuditLog,
			},
			MonthlyPriceCents: 49900,
			SelfServe:         false,
		},
	}
}
