// Package observability provides structured logging, Prometheus metrics,
// health checks and graceful shutdown for the ClientHub services.
//
// Logging is JSON via log/slog with request id and tenant id propagated
// through context. Metrics cover the HTTP surface, billing webhook
// processing, and quota decisions. Health endpoints check Postgres and
// Redis; Redis being down degrades (rate limiting fails open) rather than
// failing readiness outright.
package observability
