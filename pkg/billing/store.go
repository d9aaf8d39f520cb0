package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clienthub/clienthub/pkg/plans"
)

// Store is the narrow repository interface for subscription state and the
// idempotency ledger. The quota governor reads it; the event processor is
// its only writer outside of user-initiated local plan changes.
type Store interface {
	// Current resolves the tenant's current subscription: the Active or
	// Trial row with the greatest start date. ErrNoSubscription when no row
	// qualifies; the caller falls back to the default starter/None state.
	Current(ctx context.Context, tenantID int64) (*Subscription, error)

	// LatestWithinGrace returns the most recently cancelled subscription
	// whose grace period has not yet ended, if any.
	LatestWithinGrace(ctx context.Context, tenantID int64) (*Subscription, error)

	GetByID(ctx context.Context, id int64) (*Subscription, error)
	FindByExternalID(ctx context.Context, externalSubscriptionID string) (*Subscription, error)

	// UpsertFromExternal finds-or-creates the row keyed by
	// (tenantID, externalSubscriptionID) and applies tier and mapped status.
	// An unrecognized external status never clobbers a stored status.
	// Idempotent.
	UpsertFromExternal(ctx context.Context, tenantID int64, externalSubscriptionID string, tier plans.Tier, externalStatus, externalCustomerID string) (*Subscription, error)

	ApplyCancellation(ctx context.Context, subscriptionID int64) error
	ApplyPaymentFailure(ctx context.Context, subscriptionID int64) error
	ApplyInvoicePaid(ctx context.Context, subscriptionID int64) error

	// ChangeTierLocally mutates tier for local-only subscriptions and fails
	// with UseExternalCheckoutError for provider-managed ones.
	ChangeTierLocally(ctx context.Context, subscriptionID int64, newTier plans.Tier) error

	// CancelLocally cancels a local-only subscription with the same guard.
	CancelLocally(ctx context.Context, subscriptionID int64) error

	// StartTrial creates a local-only trial subscription
	StartTrial(ctx context.Context, tenantID int64, tier plans.Tier, length time.Duration) (*Subscription, error)

	// Idempotency ledger
	WasProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string) error
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db    *sql.DB
	clock Clock
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB, clock Clock) *PostgresStore {
	if clock == nil {
		clock = SystemClock{}
	}
	return &PostgresStore{db: db, clock: clock}
}

const subscriptionColumns = `
	id, tenant_id, tier, status, start_date, end_date, trial_expiry,
	grace_period_end, external_customer_id, external_subscription_id,
	created_at, updated_at`

func scanSubscription(row *sql.Row) (*Subscription, error) {
	sub := &Subscription{}
	err := row.Scan(
		&sub.ID, &sub.TenantID, &sub.Tier, &sub.Status, &sub.StartDate,
		&sub.EndDate, &sub.TrialExpiry, &sub.GracePeriodEnd,
		&sub.ExternalCustomerID, &sub.ExternalSubscriptionID,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Current resolves the current subscription per the greatest-start-date
// invariant over Active and Trial rows.
func (s *PostgresStore) Current(ctx context.Context, tenantID int64) (*Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE tenant_id = $1 AND status IN ($2, $3)
		ORDER BY start_date DESC, id DESC
		LIMIT 1
	`
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, tenantID, StatusActive, StatusTrial))
	if err == sql.ErrNoRows {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current subscription: %w", err)
	}
	return sub, nil
}

// LatestWithinGrace returns the most recently cancelled subscription still
// inside its grace period.
func (s *PostgresStore) LatestWithinGrace(ctx context.Context, tenantID int64) (*Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE tenant_id = $1 AND status = $2 AND grace_period_end > $3
		ORDER BY grace_period_end DESC, id DESC
		LIMIT 1
	`
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, tenantID, StatusCancelled, s.clock.Now()))
	if err == sql.ErrNoRows {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve grace-period subscription: %w", err)
	}
	return sub, nil
}

// GetByID retrieves a subscription by primary key
func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// FindByExternalID retrieves a subscription by its provider subscription id
func (s *PostgresStore) FindByExternalID(ctx context.Context, externalSubscriptionID string) (*Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE external_subscription_id = $1`
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, externalSubscriptionID))
	if err == sql.ErrNoRows {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return sub, nil
}

// UpsertFromExternal finds-or-creates by (tenant_id, external_subscription_id).
// A new external subscription id always creates a new row; the same id
// mutates in place. On create an unmapped status defaults to Active so a
// paid signup is never lost; on update an unmapped status is left alone.
func (s *PostgresStore) UpsertFromExternal(ctx context.Context, tenantID int64, externalSubscriptionID string, tier plans.Tier, externalStatus, externalCustomerID string) (*Subscription, error) {
	if externalSubscriptionID == "" {
		return nil, fmt.Errorf("external subscription id is required")
	}

	mapped, recognized := MapExternalStatus(externalStatus)
	now := s.clock.Now()

	if recognized {
		query := `
			INSERT INTO subscriptions
				(tenant_id, tier, status, start_date, external_subscription_id, external_customer_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (tenant_id, external_subscription_id)
				WHERE external_subscription_id <> '' DO UPDATE SET
				tier = EXCLUDED.tier,
				status = EXCLUDED.status,
				external_customer_id = CASE
					WHEN EXCLUDED.external_customer_id <> '' THEN EXCLUDED.external_customer_id
					ELSE subscriptions.external_customer_id
				END,
				updated_at = NOW()
			RETURNING ` + subscriptionColumns
		sub, err := scanSubscription(s.db.QueryRowContext(ctx, query,
			tenantID, tier, mapped, now, externalSubscriptionID, externalCustomerID))
		if err != nil {
			return nil, fmt.Errorf("failed to upsert subscription: %w", err)
		}
		return sub, nil
	}

	// Unrecognized provider status: never clobber the stored status.
	query := `
		INSERT INTO subscriptions
			(tenant_id, tier, status, start_date, external_subscription_id, external_customer_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, external_subscription_id)
			WHERE external_subscription_id <> '' DO UPDATE SET
			tier = EXCLUDED.tier,
			external_customer_id = CASE
				WHEN EXCLUDED.external_customer_id <> '' THEN EXCLUDED.external_customer_id
				ELSE subscriptions.external_customer_id
			END,
			updated_at = NOW()
		RETURNING ` + subscriptionColumns
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query,
		tenantID, tier, StatusActive, now, externalSubscriptionID, externalCustomerID))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return sub, nil
}

// ApplyCancellation marks the subscription cancelled and opens the grace
// period: end date now, grace period end now + 7 days. Idempotent: a second
// application keeps the original window.
func (s *PostgresStore) ApplyCancellation(ctx context.Context, subscriptionID int64) error {
	now := s.clock.Now()
	query := `
		UPDATE subscriptions
		SET status = $1,
		    end_date = COALESCE(end_date, $2),
		    grace_period_end = COALESCE(grace_period_end, $3),
		    updated_at = NOW()
		WHERE id = $4
	`
	return s.exec(ctx, query, StatusCancelled, now, now.Add(GracePeriod), subscriptionID)
}

// ApplyPaymentFailure suspends the subscription
func (s *PostgresStore) ApplyPaymentFailure(ctx context.Context, subscriptionID int64) error {
	query := `UPDATE subscriptions SET status = $1, updated_at = NOW() WHERE id = $2`
	return s.exec(ctx, query, StatusSuspended, subscriptionID)
}

// ApplyInvoicePaid reactivates the subscription (recovery from Suspended)
func (s *PostgresStore) ApplyInvoicePaid(ctx context.Context, subscriptionID int64) error {
	query := `
		UPDATE subscriptions
		SET status = $1, end_date = NULL, grace_period_end = NULL, updated_at = NOW()
		WHERE id = $2
	`
	return s.exec(ctx, query, StatusActive, subscriptionID)
}

// ChangeTierLocally mutates tier only for subscriptions the provider does
// not own. The WHERE clause enforces the guard atomically.
func (s *PostgresStore) ChangeTierLocally(ctx context.Context, subscriptionID int64, newTier plans.Tier) error {
	query := `
		UPDATE subscriptions
		SET tier = $1, updated_at = NOW()
		WHERE id = $2 AND external_subscription_id = ''
	`
	result, err := s.db.ExecContext(ctx, query, newTier, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to change tier: %w", err)
	}
	return s.guardLocalOnly(ctx, result, subscriptionID)
}

// CancelLocally cancels a local-only subscription
func (s *PostgresStore) CancelLocally(ctx context.Context, subscriptionID int64) error {
	now := s.clock.Now()
	query := `
		UPDATE subscriptions
		SET status = $1, end_date = $2, grace_period_end = $3, updated_at = NOW()
		WHERE id = $4 AND external_subscription_id = ''
	`
	result, err := s.db.ExecContext(ctx, query, StatusCancelled, now, now.Add(GracePeriod), subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	return s.guardLocalOnly(ctx, result, subscriptionID)
}

// guardLocalOnly distinguishes "row missing" from "row is provider-managed"
// when a local-only update matched nothing.
func (s *PostgresStore) guardLocalOnly(ctx context.Context, result sql.Result, subscriptionID int64) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	if _, err := s.GetByID(ctx, subscriptionID); err != nil {
		return err
	}
	return &UseExternalCheckoutError{SubscriptionID: subscriptionID}
}

// StartTrial creates a local-only trial subscription
func (s *PostgresStore) StartTrial(ctx context.Context, tenantID int64, tier plans.Tier, length time.Duration) (*Subscription, error) {
	now := s.clock.Now()
	expiry := now.Add(length)
	query := `
		INSERT INTO subscriptions (tenant_id, tier, status, start_date, trial_expiry, external_subscription_id, external_customer_id)
		VALUES ($1, $2, $3, $4, $5, '', '')
		RETURNING ` + subscriptionColumns
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, tenantID, tier, StatusTrial, now, expiry))
	if err != nil {
		return nil, fmt.Errorf("failed to start trial: %w", err)
	}
	return sub, nil
}

// WasProcessed checks the idempotency ledger for an event id
func (s *PostgresStore) WasProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM billing_events WHERE event_id = $1)`
	if err := s.db.QueryRowContext(ctx, query, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check billing event ledger: %w", err)
	}
	return exists, nil
}

// MarkProcessed records an event id in the ledger. Called only after the
// handler completed without error. ON CONFLICT absorbs the race where two
// concurrent deliveries of the same event both pass the dedup check.
func (s *PostgresStore) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	query := `
		INSERT INTO billing_events (event_id, event_type, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, eventID, eventType, s.clock.Now()); err != nil {
		return fmt.Errorf("failed to record billing event: %w", err)
	}
	return nil
}

func (s *PostgresStore) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNoSubscription
	}
	return nil
}
