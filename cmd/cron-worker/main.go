package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/practivahq/practiva-backend/internal/billing"
	"github.com/practivahq/practiva-backend/internal/calendarsync"
	"github.com/practivahq/practiva-backend/internal/cron"
	"github.com/practivahq/practiva-backend/internal/notifications"
	"github.com/practivahq/practiva-backend/internal/paymentfailures"
	paymentswebhook "github.com/practivahq/practiva-backend/internal/webhooks/payments"
	"github.com/practivahq/practiva-backend/pkg/config"
	"github.com/practivahq/practiva-backend/pkg/db"
	"github.com/practivahq/practiva-backend/pkg/logger"
	"github.com/practivahq/practiva-backend/pkg/metrics"
	"github.com/practivahq/practiva-backend/pkg/migrate"
	"github.com/practivahq/practiva-backend/pkg/pubsub"
	"github.com/practivahq/practiva-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	notifier, err := notifications.NewNotifier(notifications.NotifierParams{
		Repo:      notifications.NewRepository(dbClient.DB()),
		Publisher: pubsubClient.NotificationPublisher(),
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notifier", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()

	escalationJob, err := cron.NewPaymentEscalationJob(cron.PaymentEscalationJobParams{
		Logger:        logg,
		Failures:      paymentfailures.NewRepository(dbClient.DB()),
		Subscriptions: billing.NewRepository(dbClient.DB()),
		Notifier:      notifier,
		BatchSize:     cfg.Cron.EscalationBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment escalation job", err)
		os.Exit(1)
	}
	registry.Register(escalationJob)

	retentionJob, err := cron.NewLedgerRetentionJob(cron.LedgerRetentionJobParams{
		Logger:     logg,
		Repository: paymentswebhook.NewRepository(dbClient.DB()),
		Retention:  cfg.Webhook.LedgerRetention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger retention job", err)
		os.Exit(1)
	}
	registry.Register(retentionJob)

	cleanupJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notifications.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification cleanup job", err)
		os.Exit(1)
	}
	registry.Register(cleanupJob)

	if cfg.Calendar.TokenURL != "" {
		refresher, err := calendarsync.NewTokenRefresher(cfg.Calendar)
		if err != nil {
			logg.Error(context.Background(), "failed to create token refresher", err)
			os.Exit(1)
		}
		calendarService, err := calendarsync.NewService(calendarsync.ServiceParams{
			Repo:      calendarsync.NewRepository(dbClient.DB()),
			Refresher: refresher,
			Notifier:  notifier,
			Logger:    logg,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create calendar sync service", err)
			os.Exit(1)
		}
		refreshJob, err := cron.NewTokenRefreshJob(cron.TokenRefreshJobParams{
			Logger:  logg,
			Service: calendarService,
			Window:  cfg.Calendar.RefreshWindow,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create token refresh job", err)
			os.Exit(1)
		}
		registry.Register(refreshJob)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
