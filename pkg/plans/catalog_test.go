package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierOrdering(t *testing.T) {
	assert.Equal(t, -1, Tier("starter").Compare(TierProfessional))
	assert.Equal(t, 1, TierEnterprise.Compare(TierBusiness))
	assert.Equal(t, 0, TierStarter.Compare(TierStarter))

	// Unknown tiers order below every known tier
	assert.Equal(t, -1, Tier("platinum").Compare(TierStarter))

	assert.True(t, TierBusiness.Valid())
	assert.False(t, Tier("platinum").Valid())
}

func TestNextTier(t *testing.T) {
	next, ok := NextTier(TierStarter)
	require.True(t, ok)
	assert.Equal(t, TierProfessional, next)

	next, ok = NextTier(TierBusiness)
	require.True(t, ok)
	assert.Equal(t, TierEnterprise, next)

	_, ok = NextTier(TierEnterprise)
	assert.False(t, ok)

	_, ok = NextTier(Tier("platinum"))
	assert.False(t, ok)
}

func TestCatalogGet(t *testing.T) {
	catalog := NewCatalog()

	def, err := catalog.Get(TierProfessional)
	require.NoError(t, err)
	assert.Equal(t, int64(25), def.Limit(ResourceClientSpaces))
	assert.Equal(t, int64(1000), def.Limit(ResourceAIMessages))
	assert.True(t, def.SelfServe)

	_, err = catalog.Get(Tier("platinum"))
	var unknownErr *UnknownTierError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, Tier("platinum"), unknownErr.Tier)
}

func TestDefaultDefinitions(t *testing.T) {
	catalog := NewCatalog()

	starter, err := catalog.Get(TierStarter)
	require.NoError(t, err)
	assert.Equal(t, int64(5), starter.Limit(ResourceClientSpaces))
	assert.True(t, starter.HasFeature(FeatureAIAssistant))
	assert.False(t, starter.HasFeature(FeatureCustomBranding))

	enterprise, err := catalog.Get(TierEnterprise)
	require.NoError(t, err)
	assert.Equal(t, Unlimited, enterprise.Limit(ResourceClientSpaces))
	assert.Equal(t, Unlimited, enterprise.Limit(ResourceAIMessages))
	assert.Equal(t, int64(0), enterprise.Limit(ResourceAITokensMonthly))
	assert.False(t, enterprise.SelfServe)
}

func TestListAvailable(t *testing.T) {
	catalog := NewCatalog()

	selfServe := catalog.ListAvailable(false)
	require.Len(t, selfServe, 3)
	assert.Equal(t, TierStarter, selfServe[0].Tier)
	assert.Equal(t, TierProfessional, selfServe[1].Tier)
	assert.Equal(t, TierBusiness, selfServe[2].Tier)

	all := catalog.ListAvailable(true)
	require.Len(t, all, 4)
	assert.Equal(t, TierEnterprise, all[3].Tier)
}

func TestMinimumTierFor(t *testing.T) {
	catalog := NewCatalog()

	tier, ok := catalog.MinimumTierFor(FeatureCrossTenantSearch)
	require.True(t, ok)
	assert.Equal(t, TierBusiness, tier)

	tier, ok = catalog.MinimumTierFor(FeatureAIAssistant)
	require.True(t, ok)
	assert.Equal(t, TierStarter, tier)

	tier, ok = catalog.MinimumTierFor(FeatureSSO)
	require.True(t, ok)
	assert.Equal(t, TierEnterprise, tier)

	_, ok = catalog.MinimumTierFor(Feature("teleportation"))
	assert.False(t, ok)
}

func TestSuggestUpgrade(t *testing.T) {
	catalog := NewCatalog()

	next, ok := catalog.SuggestUpgrade(TierStarter)
	require.True(t, ok)
	assert.Equal(t, TierProfessional, next)

	// The tier above business is sales-led, so nothing is suggested
	_, ok = catalog.SuggestUpgrade(TierBusiness)
	assert.False(t, ok)

	_, ok = catalog.SuggestUpgrade(TierEnterprise)
	assert.False(t, ok)
}
