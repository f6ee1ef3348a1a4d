package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/proofpulse/proofpulse-backend/internal/bridge"
	"github.com/proofpulse/proofpulse-backend/pkg/config"
	"github.com/proofpulse/proofpulse-backend/pkg/env"
	"github.com/proofpulse/proofpulse-backend/pkg/instance"
	"github.com/proofpulse/proofpulse-backend/pkg/logger"
	"github.com/proofpulse/proofpulse-backend/pkg/metrics"
	"github.com/proofpulse/proofpulse-backend/pkg/pubsub"
	"github.com/proofpulse/proofpulse-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "bridge-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "bridge-worker"

	logg = logger.New(logger.Options{
		ServiceName: "bridge-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	subscription := pubsubClient.EventsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "events subscription", errors.New("subscription not configured"))
	}

	promRegistry := prometheus.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(promRegistry)

	consumer, err := bridge.NewConsumer(subscription, redisClient, logg, pipelineMetrics)
	requireResource(ctx, logg, "bridge consumer", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	metricsServer := serveMetrics(runCtx, logg, promRegistry)
	defer func() {
		if metricsServer != nil {
			_ = metricsServer.Close()
		}
	}()

	logg.Info(runCtx, "starting bridge worker")
	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "bridge worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "bridge worker shutting down gracefully")
}

// serveMetrics exposes /metrics on the worker's own port so the scraper does
// not depend on the API process.
func serveMetrics(ctx context.Context, logg *logger.Logger, registry *prometheus.Registry) *http.Server {
	port := env.Get("PROOFPULSE_BRIDGE_METRICS_PORT", "")
	if port == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped unexpectedly", err)
		}
	}()
	return server
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
