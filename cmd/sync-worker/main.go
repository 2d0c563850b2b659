package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/voice-booking-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/voice-booking-platform/internal/config"
	"github.com/wolfman30/voice-booking-platform/internal/observability/metrics"
	"github.com/wolfman30/voice-booking-platform/internal/reconcile"
	"github.com/wolfman30/voice-booking-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).With("component", "sync-worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if pool == nil {
		logger.Error("DATABASE_URL is required for the sync worker")
		os.Exit(1)
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	defer bootstrap.CloseAll(pool, redisClient)

	m := metrics.NewSchedulingMetrics(prometheus.DefaultRegisterer)
	scheduling, err := bootstrap.BuildScheduling(cfg, pool, redisClient, m, logger)
	if err != nil {
		logger.Error("failed to wire services", "error", err)
		os.Exit(1)
	}

	worker, err := reconcile.NewWorker(reconcile.WorkerConfig{
		Engine:   scheduling.Sync,
		Store:    scheduling.Connections,
		Logger:   logger,
		Interval: cfg.SyncInterval,
	})
	if err != nil {
		logger.Error("failed to create worker", "error", err)
		os.Exit(1)
	}

	// /bin/sync-worker once runs a single pass (cron style).
	if len(os.Args) >= 2 && os.Args[1] == "once" {
		if err := worker.SyncOnce(ctx); err != nil {
			os.Exit(1)
		}
		return
	}

	logger.Info("sync worker started", "interval", cfg.SyncInterval.String())
	worker.Start(ctx)
	logger.Info("sync worker stopped")
}
