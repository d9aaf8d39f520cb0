// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables
// with sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	CLIENTHUB_HOST="0.0.0.0"
//	CLIENTHUB_PORT="8080"
//	CLIENTHUB_HEALTH_PORT="9090"
//	CLIENTHUB_READ_TIMEOUT="15s"
//	CLIENTHUB_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	CLIENTHUB_POSTGRES_URL="postgres://localhost/clienthub"
//	CLIENTHUB_POSTGRES_MAX_CONNS="25"
//	CLIENTHUB_REDIS_URL="redis://localhost:6379"
//
// Billing settings:
//
//	CLIENTHUB_WEBHOOK_SECRET="whsec_..."
//	CLIENTHUB_PROVIDER_API_KEY="sk_..."
//	CLIENTHUB_PROVIDER_BASE_URL="https://api.payments.example.com"
//
// Plan catalog settings:
//
//	CLIENTHUB_PLAN_FILE="/etc/clienthub/plans.yaml"
//	CLIENTHUB_PLAN_FILE_WATCH="true"
//
// Observability settings:
//
//	CLIENTHUB_LOG_LEVEL="info"  # debug, info, warn, error
//	CLIENTHUB_METRICS_ENABLED="true"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/storage/postgres: uses database configuration
//   - pkg/observability: uses observability configuration
package config
