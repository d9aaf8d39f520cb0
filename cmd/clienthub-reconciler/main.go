package main

import (
	"context"
	"log"
	"os"

	"github.com/robfig/cron/v3"

	"github.com/clienthub/clienthub/pkg/billing"
	"github.com/clienthub/clienthub/pkg/config"
	"github.com/clienthub/clienthub/pkg/observability"
	"github.com/clienthub/clienthub/pkg/quota"
	"github.com/clienthub/clienthub/pkg/storage/postgres"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	runOnce := len(os.Args) > 1 && os.Args[1] == "--run-once"

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := postgres.Connect(cfg.Database)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	usageStore := quota.NewPostgresUsageStore(db, billing.SystemClock{})
	reconciler := quota.NewReconciler(usageStore, billing.SystemClock{}, logger, metrics)

	if runOnce {
		if err := reconciler.Run(context.Background()); err != nil {
			logger.WithError(err).Error("Reconciliation failed")
			os.Exit(1)
		}
		return
	}

	c := cron.New()
	_, err = c.AddFunc(cfg.Reconciler.Schedule, func() {
		if err := reconciler.Run(context.Background()); err != nil {
			logger.WithError(err).Error("Reconciliation sweep failed")
		}
	})
	if err != nil {
		logger.WithError(err).Error("Failed to schedule reconciliation")
		os.Exit(1)
	}

	c.Start()
	logger.WithField("schedule", cfg.Reconciler.Schedule).Info("Usage reconciler started")

	shutdown := observability.NewShutdownManager(logger, nil, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		stopCtx := c.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
		return nil
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}
