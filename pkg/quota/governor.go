package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/clienthub/clienthub/pkg/billing"
	"github.com/clienthub/clienthub/pkg/observability"
	"github.com/clienthub/clienthub/pkg/plans"
)

// Check outcomes reported to metrics
const (
	outcomeAllowed = "allowed"
	outcomeDenied  = "denied"
)

const (
	entitlementCacheSize = 4096
	entitlementCacheTTL  = 30 * time.Second
)

// Governor evaluates every plan-gated action against the tenant's resolved
// entitlement. Resolution walks current subscription, then cancelled rows
// still in grace, then the starter default, and the result is cached for a
// short TTL so webhook-driven plan changes converge within seconds.
type Governor struct {
	catalog *plans.Catalog
	subs    billing.Store
	usage   UsageStore
	limiter RateLimiter
	clock   billing.Clock
	logger  *observability.Logger
	metrics *observability.Metrics
	cache   *expirable.LRU[int64, *Entitlement]
}

// NewGovernor creates a Governor. limiter may be nil; the rate limit then
// counts from the Postgres request log directly.
func NewGovernor(catalog *plans.Catalog, subs billing.Store, usage UsageStore, limiter RateLimiter, clock billing.Clock, logger *observability.Logger, metrics *observability.Metrics) *Governor {
	if clock == nil {
		clock = billing.SystemClock{}
	}
	return &Governor{
		catalog: catalog,
		subs:    subs,
		usage:   usage,
		limiter: limiter,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		cache:   expirable.NewLRU[int64, *Entitlement](entitlementCacheSize, nil, entitlementCacheTTL),
	}
}

// EntitlementFor resolves the tenant's effective plan and commercial status.
// A tenant with no qualifying subscription is entitled to the starter plan.
func (g *Governor) EntitlementFor(ctx context.Context, tenantID int64) (*Entitlement, error) {
	if ent, ok := g.cache.Get(tenantID); ok {
		return ent, nil
	}

	ent, err := g.resolveEntitlement(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	g.cache.Add(tenantID, ent)
	return ent, nil
}

// InvalidateEntitlement drops the cached entitlement so the next check sees
// a just-applied subscription change immediately.
func (g *Governor) InvalidateEntitlement(tenantID int64) {
	g.cache.Remove(tenantID)
}

func (g *Governor) resolveEntitlement(ctx context.Context, tenantID int64) (*Entitlement, error) {
	sub, err := g.subs.Current(ctx, tenantID)
	if err != nil && !errors.Is(err, billing.ErrNoSubscription) {
		return nil, err
	}
	if err != nil {
		sub, err = g.subs.LatestWithinGrace(ctx, tenantID)
		if err != nil && !errors.Is(err, billing.ErrNoSubscription) {
			return nil, err
		}
	}

	tier := plans.TierStarter
	status := billing.StatusNone
	var trialExpiry, graceEnd *time.Time
	if sub != nil {
		tier = sub.Tier
		status = sub.Status
		trialExpiry = sub.TrialExpiry
		graceEnd = sub.GracePeriodEnd
	}

	def, err := g.catalog.Get(tier)
	if err != nil {
		// A stored tier that the hot-reloaded catalog no longer knows must
		// not lock the tenant out entirely.
		g.logger.WithField("tenant_id", tenantID).
			WithField("tier", string(tier)).
			Warn("subscription tier missing from plan catalog, falling back to starter")
		def, err = g.catalog.Get(plans.TierStarter)
		if err != nil {
			return nil, err
		}
		tier = plans.TierStarter
	}

	return &Entitlement{
		TenantID:       tenantID,
		Tier:           tier,
		Status:         status,
		Limits:         def.Limits,
		Features:       def.Features,
		TrialExpiry:    trialExpiry,
		GracePeriodEnd: graceEnd,
		definition:     def,
	}, nil
}

// UsageSnapshot returns the tenant's counters after applying the lazy
// monthly reset.
func (g *Governor) UsageSnapshot(ctx context.Context, tenantID int64) (*Counters, error) {
	return g.usage.CountersFor(ctx, tenantID, g.clock.Now())
}

// CheckCeiling allows an action when the plan limit for the resource is
// Unlimited or currentCount is strictly below it. The caller supplies the
// count from the same transaction that will create the resource.
func (g *Governor) CheckCeiling(ctx context.Context, tenantID int64, resource plans.Resource, currentCount int64) error {
	ent, err := g.EntitlementFor(ctx, tenantID)
	if err != nil {
		return err
	}
	limit := ent.definition.Limit(resource)
	if limit == plans.Unlimited || currentCount < limit {
		g.observe(resource, outcomeAllowed)
		return nil
	}
	g.observe(resource, outcomeDenied)
	return g.denial(ent, resource, currentCount, limit)
}

// CheckRateLimit allows an assistant request when fewer than the hourly rate
// of qualifying requests landed in the trailing window. Redis is the hot
// path; when it is unavailable the Postgres request log answers instead.
func (g *Governor) CheckRateLimit(ctx context.Context, tenantID int64) error {
	ent, err := g.EntitlementFor(ctx, tenantID)
	if err != nil {
		return err
	}
	limit := ent.definition.Limit(plans.ResourceAssistantRequestsPerHour)
	if limit == plans.Unlimited {
		g.observe(plans.ResourceAssistantRequestsPerHour, outcomeAllowed)
		return nil
	}

	now := g.clock.Now()
	count, err := g.countInWindow(ctx, tenantID, now)
	if err != nil {
		return err
	}
	if count < limit {
		g.observe(plans.ResourceAssistantRequestsPerHour, outcomeAllowed)
		return nil
	}
	g.observe(plans.ResourceAssistantRequestsPerHour, outcomeDenied)
	return g.denial(ent, plans.ResourceAssistantRequestsPerHour, count, limit)
}

func (g *Governor) countInWindow(ctx context.Context, tenantID int64, now time.Time) (int64, error) {
	if g.limiter != nil {
		count, err := g.limiter.Count(ctx, tenantID, now)
		if err == nil {
			return count, nil
		}
		g.logger.WithError(err).WithField("tenant_id", tenantID).
			Warn("rate limit counter unavailable, counting from request log")
	}
	count, err := g.usage.CountAssistantRequestsSince(ctx, tenantID, now.Add(-RateLimitWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to count assistant requests: %w", err)
	}
	return count, nil
}

// CheckTokenBudget allows a request when the monthly token budget is
// disabled (0) or the tokens already consumed this calendar month are
// strictly below it. requested is the caller's token estimate; it is not
// pre-charged, actual consumption is recorded after completion, so a
// request may overshoot the budget by at most one response. The lazy
// monthly reset applies before evaluation.
func (g *Governor) CheckTokenBudget(ctx context.Context, tenantID int64, requested int64) error {
	_ = requested
	ent, err := g.EntitlementFor(ctx, tenantID)
	if err != nil {
		return err
	}
	budget := ent.definition.Limit(plans.ResourceAITokensMonthly)
	if budget == 0 || budget == plans.Unlimited {
		g.observe(plans.ResourceAITokensMonthly, outcomeAllowed)
		return nil
	}

	counters, err := g.usage.CountersFor(ctx, tenantID, g.clock.Now())
	if err != nil {
		return err
	}
	if counters.TokensUsedMonth < budget {
		g.observe(plans.ResourceAITokensMonthly, outcomeAllowed)
		return nil
	}
	g.observe(plans.ResourceAITokensMonthly, outcomeDenied)
	return g.denial(ent, plans.ResourceAITokensMonthly, counters.TokensUsedMonth, budget)
}

// CheckFeatureAccess allows an action when the tenant's plan carries the
// feature flag. Denials name the minimum tier that grants it.
func (g *Governor) CheckFeatureAccess(ctx context.Context, tenantID int64, feature plans.Feature) error {
	ent, err := g.EntitlementFor(ctx, tenantID)
	if err != nil {
		return err
	}
	if ent.definition.HasFeature(feature) {
		return nil
	}

	ferr := &FeatureNotAvailableError{Feature: feature}
	required, ok := g.catalog.MinimumTierFor(feature)
	if ok {
		if def, err := g.catalog.Get(required); err == nil && !def.SelfServe {
			ferr.ContactSales = true
		} else {
			ferr.RequiredTier = required
		}
	}
	return ferr
}

// RecordUsage accounts for a successfully completed action. Callers invoke
// it only after the guarded work committed.
func (g *Governor) RecordUsage(ctx context.Context, tenantID int64, resource plans.Resource, amount int64) error {
	now := g.clock.Now()
	switch resource {
	case plans.ResourceClientSpaces:
		if err := g.usage.IncrementSpaces(ctx, tenantID, amount); err != nil {
			return err
		}
	case plans.ResourceAIMessages:
		if err := g.usage.IncrementAIMessages(ctx, tenantID, amount); err != nil {
			return err
		}
		if err := g.usage.LogAssistantRequest(ctx, tenantID, now); err != nil {
			return err
		}
		if g.limiter != nil {
			if err := g.limiter.Record(ctx, tenantID, now); err != nil {
				// The log row above already landed; the reconciler heals the
				// window counter.
				g.logger.WithError(err).WithField("tenant_id", tenantID).
					Warn("failed to record request in rate limit window")
			}
		}
	case plans.ResourceAITokensMonthly:
		if err := g.usage.AddTokens(ctx, tenantID, amount); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unrecordable resource %q", resource)
	}
	if g.metrics != nil {
		g.metrics.UsageRecordedTotal.WithLabelValues(string(resource)).Add(float64(amount))
	}
	return nil
}

func (g *Governor) denial(ent *Entitlement, resource plans.Resource, current, limit int64) error {
	qerr := &QuotaExceededError{
		Resource: resource,
		Current:  current,
		Limit:    limit,
	}
	if next, ok := g.catalog.SuggestUpgrade(ent.Tier); ok {
		qerr.SuggestedTier = next
	} else if _, ok := plans.NextTier(ent.Tier); ok {
		qerr.ContactSales = true
	}
	return qerr
}

func (g *Governor) observe(resource plans.Resource, outcome string) {
	if g.metrics != nil {
		g.metrics.ObserveQuotaCheck(string(resource), outcome)
	}
}
