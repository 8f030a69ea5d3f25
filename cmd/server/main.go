package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/stripe-webhook-listener/internal/api"
	"github.com/Priya8975/stripe-webhook-listener/internal/billing"
	"github.com/Priya8975/stripe-webhook-listener/internal/config"
	"github.com/Priya8975/stripe-webhook-listener/internal/engine"
	"github.com/Priya8975/stripe-webhook-listener/internal/store"
	ws "github.com/Priya8975/stripe-webhook-listener/internal/websocket"
	"github.com/Priya8975/stripe-webhook-listener/internal/worker"
	"github.com/Priya8975/stripe-webhook-listener/migrations"
	"github.com/Priya8975/stripe-webhook-listener/pkg/stripehook"
)

const version = "1.0.0"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, migrations.FS); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis
	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	listener, err := stripehook.NewListener(stripehook.Config{
		Secret:    cfg.StripeWebhookSecret,
		Tolerance: cfg.SignatureTolerance,
	})
	if err != nil {
		logger.Error("failed to create webhook listener", "error", err)
		os.Exit(1)
	}

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	projector := billing.NewProjector(pgStore, logger)
	processor := worker.NewProcessor(projector, pgStore, hub, worker.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
	}, logger)
	pool := worker.NewPool(cfg.NumWorkers, cfg.QueueSize, processor, logger)
	pool.Start(ctx)

	limiter := engine.NewRateLimiter(redisStore.Client(), logger)
	webhook := api.NewWebhookHandler(listener, pgStore, redisStore, pool, limiter, hub, api.WebhookConfig{
		MaxBodyBytes: cfg.MaxBodyBytes,
		DedupeTTL:    cfg.DedupeTTL,
		RateLimit:    cfg.IngressRateLimit,
	}, logger)

	router := api.NewRouter(api.RouterDeps{
		Store:   pgStore,
		Webhook: webhook,
		Queue:   pool,
		Hub:     hub,
		Health: map[string]api.Pinger{
			"postgres": pgStore,
			"redis":    redisStore,
		},
		Version: version,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port, "tolerance", listener.Tolerance().String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Drain queued jobs before the stores close.
	pool.Stop()
	cancel()

	logger.Info("server stopped")
}
