package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/clienthub/clienthub/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Billing provider configuration
	Billing BillingConfig

	// Plan catalog configuration
	Plans PlansConfig

	// Observability configuration
	Observability ObservabilityConfig

	// Reconciler configuration
	Reconciler ReconcilerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string
	MaxConns     int
	MinConns     int
	ConnLifetime time.Duration
	Timeout      time.Duration
}

// RedisConfig holds Redis connection settings. Redis backs the shared
// rate-limit window; it is optional and the service degrades to Postgres
// counting without it.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// BillingConfig holds payment provider settings
type BillingConfig struct {
	// WebhookSecret is the shared HMAC secret for webhook signatures
	WebhookSecret string

	// ProviderAPIKey authenticates outbound provider API calls
	ProviderAPIKey string

	// ProviderBaseURL is the provider API root
	ProviderBaseURL string
}

// PlansConfig holds plan catalog settings
type PlansConfig struct {
	// File is an optional YAML plan catalog overriding the built-in
	// defaults. Empty means built-ins only.
	File string

	// Watch reloads the catalog when the file changes
	Watch bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// ReconcilerConfig holds usage reconciler settings
type ReconcilerConfig struct {
	// Schedule is a cron expression for the reconciliation sweep
	Schedule string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("CLIENTHUB_HOST", "0.0.0.0"),
			Port:            getEnv("CLIENTHUB_PORT", "8080"),
			ReadTimeout:     getEnvDuration("CLIENTHUB_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("CLIENTHUB_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("CLIENTHUB_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("CLIENTHUB_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("CLIENTHUB_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("CLIENTHUB_POSTGRES_URL", ""),
			MaxConns:     getEnvInt("CLIENTHUB_POSTGRES_MAX_CONNS", 25),
			MinConns:     getEnvInt("CLIENTHUB_POSTGRES_MIN_CONNS", 5),
			ConnLifetime: getEnvDuration("CLIENTHUB_POSTGRES_CONN_LIFETIME", 30*time.Minute),
			Timeout:      getEnvDuration("CLIENTHUB_POSTGRES_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("CLIENTHUB_REDIS_URL", ""),
			Password: getEnv("CLIENTHUB_REDIS_PASSWORD", ""),
			DB:       getEnvInt("CLIENTHUB_REDIS_DB", 0),
			PoolSize: getEnvInt("CLIENTHUB_REDIS_POOL_SIZE", 10),
		},
		Billing: BillingConfig{
			WebhookSecret:   getEnv("CLIENTHUB_WEBHOOK_SECRET", ""),
			ProviderAPIKey:  getEnv("CLIENTHUB_PROVIDER_API_KEY", ""),
			ProviderBaseURL: getEnv("CLIENTHUB_PROVIDER_BASE_URL", "https://api.payments.example.com"),
		},
		Plans: PlansConfig{
			File:  getEnv("CLIENTHUB_PLAN_FILE", ""),
			Watch: getEnvBool("CLIENTHUB_PLAN_FILE_WATCH", true),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("CLIENTHUB_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("CLIENTHUB_METRICS_ENABLED", true),
		},
		Reconciler: ReconcilerConfig{
			Schedule: getEnv("CLIENTHUB_RECONCILER_SCHEDULE", "@hourly"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("postgres max conns must be >= min conns")
	}

	if c.Billing.WebhookSecret == "" {
		return fmt.Errorf("webhook secret is required")
	}

	if c.Reconciler.Schedule == "" {
		return fmt.Errorf("reconciler schedule is required")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
