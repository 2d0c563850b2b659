package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/voice-booking-platform/internal/api/router"
	"github.com/wolfman30/voice-booking-platform/internal/app/bootstrap"
	"github.com/wolfman30/voice-booking-platform/internal/appointments"
	"github.com/wolfman30/voice-booking-platform/internal/calendar"
	appconfig "github.com/wolfman30/voice-booking-platform/internal/config"
	"github.com/wolfman30/voice-booking-platform/internal/observability/metrics"
	"github.com/wolfman30/voice-booking-platform/internal/reconcile"
	"github.com/wolfman30/voice-booking-platform/internal/voice"
	"github.com/wolfman30/voice-booking-platform/pkg/logging"
)

func main() {
	// .env is optional; real deployments use the environment.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting voice-booking-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	defer bootstrap.CloseAll(pool, redisClient)

	metricsHandler, schedulingMetrics := setupMetrics()

	scheduling, err := bootstrap.BuildScheduling(cfg, pool, redisClient, schedulingMetrics, logger)
	if err != nil {
		logger.Error("failed to wire services", "error", err)
		os.Exit(1)
	}
	handler, err := buildHandler(cfg, logger, scheduling, schedulingMetrics, metricsHandler)
	if err != nil {
		logger.Error("failed to wire services", "error", err)
		os.Exit(1)
	}

	srv := newServer(cfg, handler)

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers the scheduling metrics on a private registry and
// returns the handler that exposes them.
func setupMetrics() (http.Handler, *metrics.SchedulingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewSchedulingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

func buildHandler(cfg *appconfig.Config, logger *logging.Logger, s *bootstrap.Scheduling, m *metrics.SchedulingMetrics, metricsHandler http.Handler) (http.Handler, error) {
	voiceRouter, err := bootstrap.BuildVoiceRouter(cfg, s, m, logger)
	if err != nil {
		return nil, err
	}
	voiceHandler := voice.NewHandler(voiceRouter, logger)
	if s.Replay != nil {
		voiceHandler.WithReplayStore(s.Replay)
	}
	return router.New(&router.Config{
		Logger:              logger,
		AppointmentsHandler: appointments.NewHandler(s.Appointments, logger),
		CalendarHandler:     calendar.NewHandler(s.Registry, s.OAuthConfigs, cfg.FrontendURL, logger),
		SyncHandler:         reconcile.NewHandler(s.Sync, logger),
		VoiceHandler:        voiceHandler,
		MetricsHandler:      metricsHandler,
		JWTSecret:           cfg.JWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		WebhookRateLimitRPS: cfg.WebhookRateLimitRPS,
		WebhookRateBurst:    cfg.WebhookRateBurst,
		VoiceWebhookSecret:  cfg.VoiceWebhookSecret,
	}), nil
}

func newServer(cfg *appconfig.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
