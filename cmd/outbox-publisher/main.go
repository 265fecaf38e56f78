package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/fintrack-backend/internal/notifications"
	"github.com/angelmondragon/fintrack-backend/internal/subscribers"
	"github.com/angelmondragon/fintrack-backend/pkg/config"
	"github.com/angelmondragon/fintrack-backend/pkg/db"
	"github.com/angelmondragon/fintrack-backend/pkg/email"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
	"github.com/angelmondragon/fintrack-backend/pkg/metrics"
	"github.com/angelmondragon/fintrack-backend/pkg/migrate"
	"github.com/angelmondragon/fintrack-backend/pkg/outbox"
	"github.com/angelmondragon/fintrack-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/fintrack-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "outbox-publisher"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
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
			logg.Error(context.Background(), "error closing resources", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	sender, err := email.NewSender(cfg.Postmark, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to configure email sender", err)
		os.Exit(1)
	}
	renderer, err := notifications.NewRenderer(cfg.Postmark.SupportEmail)
	if err != nil {
		logg.Error(context.Background(), "failed to parse email templates", err)
		os.Exit(1)
	}
	dedupe, err := idempotency.NewManager(redisClient, cfg.Eventing.WebhookIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create dedupe manager", err)
		os.Exit(1)
	}
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Recipients: subscribers.NewRepository(dbClient.DB()),
		Renderer:   renderer,
		Sender:     sender,
		Dedupe:     dedupe,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Dispatcher:    dispatcher,
		Metrics:       metrics.NewDispatchMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox publisher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	metrics.Serve(ctx, cfg.Service.MetricsPort, prometheus.DefaultGatherer, logg)
	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}
