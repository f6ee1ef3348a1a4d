package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/proofpulse/proofpulse-backend/api/controllers"
	"github.com/proofpulse/proofpulse-backend/api/routes"
	"github.com/proofpulse/proofpulse-backend/internal/publisher"
	"github.com/proofpulse/proofpulse-backend/internal/sites"
	"github.com/proofpulse/proofpulse-backend/internal/stream"
	"github.com/proofpulse/proofpulse-backend/internal/webhooks"
	"github.com/proofpulse/proofpulse-backend/internal/webhooks/signature"
	"github.com/proofpulse/proofpulse-backend/pkg/config"
	"github.com/proofpulse/proofpulse-backend/pkg/db"
	"github.com/proofpulse/proofpulse-backend/pkg/logger"
	"github.com/proofpulse/proofpulse-backend/pkg/metrics"
	"github.com/proofpulse/proofpulse-backend/pkg/migrate"
	"github.com/proofpulse/proofpulse-backend/pkg/pubsub"
	"github.com/proofpulse/proofpulse-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(promRegistry)

	publishService, err := publisher.NewService(publisher.ServiceParams{
		Bus:     publisher.NewGCPBus(pubsubClient.EventsPublisher()),
		Config:  cfg.Publisher,
		Logger:  logg,
		Metrics: pipelineMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create publisher", err)
		os.Exit(1)
	}

	siteRepo := sites.NewRepository(dbClient.DB())
	resolver := sites.NewResolver(siteRepo)

	guard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency guard", err)
		os.Exit(1)
	}

	webhookService, err := webhooks.NewService(webhooks.ServiceParams{
		Secrets:   signature.NewConfigSecretStore(cfg.Webhook, cfg.App),
		Resolver:  resolver,
		Publisher: publishService,
		Guard:     guard,
		Logger:    logg,
		Metrics:   pipelineMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	streamServer, err := stream.NewServer(stream.ServerParams{
		Config:   cfg.Stream,
		Verifier: resolver,
		Channels: redisClient,
		Logger:   logg,
		Metrics:  pipelineMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stream server", err)
		os.Exit(1)
	}

	readyChecks := map[string]controllers.Pinger{
		"database": dbClient,
		"redis":    redisClient,
		"pubsub":   pubsubClient,
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			readyChecks,
			webhookService,
			streamServer,
			siteRepo,
			promRegistry,
		),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
	case err := <-errCh:
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	// Cancel all open streams first, then stop accepting HTTP.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Stream.ShutdownGrace)
	defer cancel()
	if err := streamServer.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "stream server shutdown incomplete", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "http server shutdown incomplete", err)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
