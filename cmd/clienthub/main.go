package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clienthub/clienthub/pkg/api"
	"github.com/clienthub/clienthub/pkg/assistant"
	"github.com/clienthub/clienthub/pkg/billing"
	"github.com/clienthub/clienthub/pkg/config"
	"github.com/clienthub/clienthub/pkg/observability"
	"github.com/clienthub/clienthub/pkg/plans"
	"github.com/clienthub/clienthub/pkg/quota"
	"github.com/clienthub/clienthub/pkg/spaces"
	"github.com/clienthub/clienthub/pkg/storage/postgres"
	"github.com/clienthub/clienthub/pkg/tenants"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	db, err := postgres.Connect(cfg.Database)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := postgres.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}
	postgres.ReportPoolStats(ctx, db, metrics, 0)

	redisClient, err := postgres.NewRedisClient(cfg.Redis)
	if err != nil {
		// Redis only backs the rate-limit hot path; run without it.
		logger.WithError(err).Warn("Redis unavailable, rate limits served from Postgres")
		redisClient = nil
	}

	catalog := plans.NewCatalog()
	if cfg.Plans.File != "" {
		if err := catalog.LoadFile(cfg.Plans.File); err != nil {
			logger.WithError(err).Error("Failed to load plan catalog file")
			os.Exit(1)
		}
		if cfg.Plans.Watch {
			go func() {
				if err := catalog.Watch(ctx, cfg.Plans.File, logger); err != nil {
					logger.WithError(err).Warn("Plan catalog watcher stopped")
				}
			}()
		}
	}

	clock := billing.SystemClock{}
	tenantService := tenants.NewPostgresService(db)
	subStore := billing.NewPostgresStore(db, clock)
	usageStore := quota.NewPostgresUsageStore(db, clock)

	var limiter quota.RateLimiter
	if redisClient != nil {
		limiter = quota.NewRedisRateLimiter(redisClient, quota.RateLimitWindow)
	}

	governor := quota.NewGovernor(catalog, subStore, usageStore, limiter, clock, logger, metrics)
	processor := billing.NewProcessor(subStore, tenantService, catalog, cfg.Billing.WebhookSecret, clock, logger, metrics)
	checkoutClient := billing.NewHTTPCheckoutClient(cfg.Billing.ProviderBaseURL, cfg.Billing.ProviderAPIKey)
	checkoutService := billing.NewCheckoutService(catalog, tenantService, checkoutClient)
	spaceService := spaces.NewService(db, governor)
	assistantService := assistant.NewService(db, governor, assistant.StaticResponder{}, limiter, clock)

	server := api.NewServer(api.Dependencies{
		Catalog:   catalog,
		Tenants:   tenantService,
		Subs:      subStore,
		Processor: processor,
		Checkout:  checkoutService,
		Governor:  governor,
		Spaces:    spaceService,
		Assistant: assistantService,
		DB:        db,
		Logger:    logger,
		Metrics:   metrics,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes.
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.Handler(registry))
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
			cancel()
		}
	}()

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		cancel()
		if redisClient != nil {
			redisClient.Close()
		}
		return db.Close()
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}
