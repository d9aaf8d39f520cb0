package quota

import (
	"context"
	"time"

	"github.com/clienthub/clienthub/pkg/billing"
	"github.com/clienthub/clienthub/pkg/observability"
	"github.com/clienthub/clienthub/pkg/plans"
)

// retention keeps enough request-log history to recount any calendar month
// that is still open.
const requestLogRetention = 45 * 24 * time.Hour

// Reconciler recomputes the maintained counters from their source tables
// and heals drift: monthly messages from the raw request log, the live
// space count from client_spaces. The counters are maintained on the hot
// path; drift appears when a process dies between the artifact commit and
// the counter update, or when the rate limit window was served from
// Postgres fallback.
type Reconciler struct {
	usage   *PostgresUsageStore
	clock   billing.Clock
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewReconciler creates a Reconciler
func NewReconciler(usage *PostgresUsageStore, clock billing.Clock, logger *observability.Logger, metrics *observability.Metrics) *Reconciler {
	if clock == nil {
		clock = billing.SystemClock{}
	}
	return &Reconciler{usage: usage, clock: clock, logger: logger, metrics: metrics}
}

// Run performs one reconciliation sweep over every tenant with a counter
// row, then prunes request-log rows past retention. Per-tenant failures are
// logged and skipped so one bad row never stalls the sweep.
func (r *Reconciler) Run(ctx context.Context) error {
	now := r.clock.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	ids, err := r.usage.TenantsWithCounters(ctx)
	if err != nil {
		return err
	}

	healed := 0
	for _, tenantID := range ids {
		if err := r.reconcileTenant(ctx, tenantID, monthStart, now); err != nil {
			r.logger.WithError(err).WithField("tenant_id", tenantID).
				Error("failed to reconcile usage counters")
			continue
		}
		healed++
	}

	pruned, err := r.usage.PruneAssistantRequests(ctx, now.Add(-requestLogRetention))
	if err != nil {
		r.logger.WithError(err).Error("failed to prune assistant request log")
	}

	r.logger.WithFields(map[string]interface{}{
		"tenants":     len(ids),
		"reconciled":  healed,
		"pruned_rows": pruned,
	}).Info("usage reconciliation sweep complete")
	return nil
}

func (r *Reconciler) reconcileTenant(ctx context.Context, tenantID int64, monthStart, now time.Time) error {
	counters, err := r.usage.CountersFor(ctx, tenantID, now)
	if err != nil {
		return err
	}

	logged, err := r.usage.CountAssistantRequestsBetween(ctx, tenantID, monthStart, now)
	if err != nil {
		return err
	}
	if logged != counters.AIMessagesMonth {
		r.observeDrift(plans.ResourceAIMessages, logged-counters.AIMessagesMonth)
		r.logger.WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"counter":   counters.AIMessagesMonth,
			"logged":    logged,
		}).Warn("monthly message counter drifted from request log, healing")
		if err := r.usage.SetMonthlyMessages(ctx, tenantID, logged); err != nil {
			return err
		}
	}

	spaces, err := r.usage.CountActiveSpaces(ctx, tenantID)
	if err != nil {
		return err
	}
	if spaces != counters.SpacesCount {
		r.observeDrift(plans.ResourceClientSpaces, spaces-counters.SpacesCount)
		r.logger.WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"counter":   counters.SpacesCount,
			"actual":    spaces,
		}).Warn("space counter drifted from source table, healing")
		if err := r.usage.SetSpacesCount(ctx, tenantID, spaces); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) observeDrift(resource plans.Resource, drift int64) {
	if r.metrics == nil {
		return
	}
	if drift < 0 {
		drift = -drift
	}
	r.metrics.ReconcilerDriftTotal.WithLabelValues(string(resource)).Add(float64(drift))
}
