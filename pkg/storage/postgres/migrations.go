package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create tenants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenants (
					id BIGSERIAL PRIMARY KEY,
					external_id VARCHAR(255) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					status VARCHAR(32) NOT NULL DEFAULT 'active',
					placeholder BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_tenants_status ON tenants(status);
			`,
		},
		{
			Version:     2,
			Description: "Create subscriptions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS subscriptions (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					tier VARCHAR(32) NOT NULL,
					status VARCHAR(32) NOT NULL,
					start_date TIMESTAMPTZ NOT NULL,
					end_date TIMESTAMPTZ,
					trial_expiry TIMESTAMPTZ,
					grace_period_end TIMESTAMPTZ,
					external_customer_id VARCHAR(255) NOT NULL DEFAULT '',
					external_subscription_id VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX idx_subscriptions_tenant_external
					ON subscriptions(tenant_id, external_subscription_id)
					WHERE external_subscription_id <> '';
				CREATE INDEX idx_subscriptions_tenant_status ON subscriptions(tenant_id, status);
				CREATE INDEX idx_subscriptions_external ON subscriptions(external_subscription_id)
					WHERE external_subscription_id <> '';
			`,
		},
		{
			Version:     3,
			Description: "Create billing event ledger",
			SQL: `
				CREATE TABLE IF NOT EXISTS billing_events (
					id BIGSERIAL PRIMARY KEY,
					event_id VARCHAR(255) NOT NULL UNIQUE,
					event_type VARCHAR(100) NOT NULL,
					processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_billing_events_type ON billing_events(event_type);
			`,
		},
		{
			Version:     4,
			Description: "Create usage counters and assistant request log",
			SQL: `
				CREATE TABLE IF NOT EXISTS usage_counters (
					tenant_id BIGINT PRIMARY KEY REFERENCES tenants(id) ON DELETE CASCADE,
					spaces_count BIGINT NOT NULL DEFAULT 0,
					ai_messages_month BIGINT NOT NULL DEFAULT 0,
					tokens_used_month BIGINT NOT NULL DEFAULT 0,
					last_monthly_reset TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS assistant_requests (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					requested_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX idx_assistant_requests_tenant_time
					ON assistant_requests(tenant_id, requested_at);
			`,
		},
		{
			Version:     5,
			Description: "Create client spaces and assistant messages",
			SQL: `
				CREATE TABLE IF NOT EXISTS client_spaces (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					archived BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(tenant_id, name)
				);

				CREATE INDEX idx_client_spaces_tenant ON client_spaces(tenant_id) WHERE NOT archived;

				CREATE TABLE IF NOT EXISTS assistant_messages (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					space_id BIGINT REFERENCES client_spaces(id) ON DELETE SET NULL,
					prompt TEXT NOT NULL,
					response TEXT NOT NULL DEFAULT '',
					tokens_used BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_assistant_messages_tenant_time
					ON assistant_messages(tenant_id, created_at);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
