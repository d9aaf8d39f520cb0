package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Billing webhook metrics
	WebhookEventsTotal      *prometheus.CounterVec
	WebhookProcessDuration  *prometheus.HistogramVec
	SignatureFailuresTotal  prometheus.Counter
	SubscriptionTransitions *prometheus.CounterVec

	// Quota metrics
	QuotaChecksTotal     *prometheus.CounterVec
	UsageRecordedTotal   *prometheus.CounterVec
	ReconcilerDriftTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clienthub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clienthub_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clienthub_billing_webhook_events_total",
				Help: "Billing webhook events by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		WebhookProcessDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clienthub_billing_webhook_duration_seconds",
				Help:    "Billing event handler duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		SignatureFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clienthub_billing_webhook_signature_failures_total",
				Help: "Webhook payloads rejected for a bad or missing signature",
			},
		),
		SubscriptionTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clienthub_subscription_transitions_total",
				Help: "Subscription status transitions applied from billing events",
			},
			[]string{"to_status"},
		),

		QuotaChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clienthub_quota_checks_total",
				Help: "Quota governor decisions by resource and outcome",
			},
			[]string{"resource", "outcome"},
		),
		UsageRecordedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clienthub_usage_recorded_total",
				Help: "Usage units recorded after guarded actions succeeded",
			},
			[]string{"resource"},
		),
		ReconcilerDriftTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clienthub_usage_reconciler_drift_total",
				Help: "Counter drift detected between maintained counters and raw logs",
			},
			[]string{"resource"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "clienthub_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "clienthub_db_connections_idle",
				Help: "Idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WebhookEventsTotal,
		m.WebhookProcessDuration,
		m.SignatureFailuresTotal,
		m.SubscriptionTransitions,
		m.QuotaChecksTotal,
		m.UsageRecordedTotal,
		m.ReconcilerDriftTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the Prometheus metrics HTTP handler for a registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// HTTPMiddleware records request count and duration per route
func (m *Metrics) HTTPMiddleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveWebhook records the outcome and duration of one billing event
func (m *Metrics) ObserveWebhook(eventType, outcome string, duration time.Duration) {
	m.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
	m.WebhookProcessDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// ObserveQuotaCheck records a single governor decision
func (m *Metrics) ObserveQuotaCheck(resource, outcome string) {
	m.QuotaChecksTotal.WithLabelValues(resource, outcome).Inc()
}
