package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/fintrack-backend/api/routes"
	"github.com/angelmondragon/fintrack-backend/internal/app"
	paddlewebhook "github.com/angelmondragon/fintrack-backend/internal/webhooks/paddle"
	"github.com/angelmondragon/fintrack-backend/pkg/config"
	"github.com/angelmondragon/fintrack-backend/pkg/db"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/metrics"
	"github.com/angelmondragon/fintrack-backend/pkg/migrate"
	"github.com/angelmondragon/fintrack-backend/pkg/redis"
)

const (
	webhookScope    = "paddle-webhook"
	shutdownTimeout = 15 * time.Second
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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		_ = dbClient.Close()
		os.Exit(1)
	}
	defer func() {
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing connections", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	paddleClient, err := app.NewPaddle(context.Background(), cfg.Paddle, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create paddle client", err)
		os.Exit(1)
	}
	if paddleClient != nil {
		ctx := logg.WithField(context.Background(), "paddle_env", paddleClient.Environment())
		logg.Info(ctx, "paddle client wired to API routes")
	}

	services, err := app.Build(context.Background(), app.Params{
		Config:  cfg,
		DB:      dbClient,
		Logger:  logg,
		Metrics: metrics.NewBillingMetrics(prometheus.DefaultRegisterer),
		Paddle:  paddleClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}

	if cfg.FeatureFlags.SeedCatalog {
		if err := services.Seed(context.Background()); err != nil {
			logg.Error(context.Background(), "failed to seed catalog", err)
			os.Exit(1)
		}
	}

	guard, err := paddlewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, webhookScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	addr := fmt.Sprintf(":%s", cfg.App.Port)
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient,
			Redis:        redisClient,
			Services:     services,
			Paddle:       paddleClient,
			WebhookGuard: guard,
			Gatherer:     prometheus.DefaultGatherer,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "addr", addr), "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
