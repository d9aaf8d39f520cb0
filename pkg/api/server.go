package api

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/clienthub/clienthub/pkg/assistant"
	"github.com/clienthub/clienthub/pkg/billing"
	"github.com/clienthub/clienthub/pkg/httputil"
	"github.com/clienthub/clienthub/pkg/middleware"
	"github.com/clienthub/clienthub/pkg/observability"
	"github.com/clienthub/clienthub/pkg/plans"
	"github.com/clienthub/clienthub/pkg/quota"
	"github.com/clienthub/clienthub/pkg/spaces"
	"github.com/clienthub/clienthub/pkg/tenants"
)

const maxBodyBytes = 1 << 20

// Server is the HTTP API server
type Server struct {
	router *mux.Router

	catalog   *plans.Catalog
	tenants   tenants.Service
	subs      billing.Store
	processor *billing.Processor
	checkout  *billing.CheckoutService
	governor  *quota.Governor
	spaces    *spaces.Service
	assistant *assistant.Service
	db        *sql.DB

	logger  *observability.Logger
	metrics *observability.Metrics
}

// Dependencies carries everything the server needs
type Dependencies struct {
	Catalog   *plans.Catalog
	Tenants   tenants.Service
	Subs      billing.Store
	Processor *billing.Processor
	Checkout  *billing.CheckoutService
	Governor  *quota.Governor
	Spaces    *spaces.Service
	Assistant *assistant.Service
	DB        *sql.DB
	Logger    *observability.Logger
	Metrics   *observability.Metrics
}

// NewServer creates the API server and wires its routes
func NewServer(deps Dependencies) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		catalog:   deps.Catalog,
		tenants:   deps.Tenants,
		subs:      deps.Subs,
		processor: deps.Processor,
		checkout:  deps.Checkout,
		governor:  deps.Governor,
		spaces:    deps.Spaces,
		assistant: deps.Assistant,
		db:        deps.DB,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	base := httputil.Chain(
		httputil.RequestIDMiddleware(s.logger),
		httputil.RecoveryMiddleware,
		httputil.MaxBytesMiddleware(maxBodyBytes),
	)

	// Webhook: signature-authenticated, no tenant identity.
	s.router.Handle("/billing/webhook",
		base(s.instrument("/billing/webhook", http.HandlerFunc(s.handleWebhook)))).
		Methods("POST")

	// Everything else requires a tenant.
	tenant := middleware.TenantContextMiddleware(s.tenants)
	route := func(path string, handler http.HandlerFunc) http.Handler {
		return base(tenant(s.instrument(path, handler)))
	}

	s.router.Handle("/billing/plans", base(s.instrument("/billing/plans", http.HandlerFunc(s.handleListPlans)))).Methods("GET")
	s.router.Handle("/billing/checkout", route("/billing/checkout", s.handleCheckout)).Methods("POST")
	s.router.Handle("/billing/subscription", route("/billing/subscription", s.handleSubscriptionStatus)).Methods("GET")
	s.router.Handle("/billing/subscription/trial", route("/billing/subscription/trial", s.handleStartTrial)).Methods("POST")
	s.router.Handle("/billing/subscription/change", route("/billing/subscription/change", s.handleChangeTier)).Methods("POST")
	s.router.Handle("/billing/subscription/cancel", route("/billing/subscription/cancel", s.handleCancel)).Methods("POST")

	s.router.Handle("/spaces", route("/spaces", s.handleCreateSpace)).Methods("POST")
	s.router.Handle("/spaces", route("/spaces", s.handleListSpaces)).Methods("GET")
	s.router.Handle("/spaces/{id}", route("/spaces/{id}", s.handleArchiveSpace)).Methods("DELETE")

	s.router.Handle("/assistant/messages", route("/assistant/messages", s.handleSendMessage)).Methods("POST")
	s.router.Handle("/assistant/messages", route("/assistant/messages", s.handleListMessages)).Methods("GET")

	s.router.Handle("/search/global", route("/search/global", s.handleGlobalSearch)).Methods("GET")
}

func (s *Server) instrument(routeName string, next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return s.metrics.HTTPMiddleware(routeName, next)
}

// Router returns the configured handler
func (s *Server) Router() http.Handler {
	return s.router
}
