package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/practivahq/practiva-backend/api/routes"
	"github.com/practivahq/practiva-backend/internal/billing"
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
	"github.com/prometheus/client_golang/prometheus"
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
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	service, eventsRepo, failuresRepo, err := buildWebhookPipeline(cfg, logg, dbClient, redisClient, pubsubClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire webhook pipeline", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, service, eventsRepo, failuresRepo),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logg.Error(ctx, "error draining api server", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "api server shut down gracefully")
}

func buildWebhookPipeline(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	pubsubClient *pubsub.Client,
) (*paymentswebhook.Service, paymentswebhook.Repository, paymentfailures.Repository, error) {
	eventsRepo := paymentswebhook.NewRepository(dbClient.DB())
	failuresRepo := paymentfailures.NewRepository(dbClient.DB())
	billingRepo := billing.NewRepository(dbClient.DB())
	notificationsRepo := notifications.NewRepository(dbClient.DB())

	verifier, err := paymentswebhook.NewVerifier(cfg.Webhook.SigningSecret)
	if err != nil {
		return nil, nil, nil, err
	}
	ledger, err := paymentswebhook.NewLedger(eventsRepo)
	if err != nil {
		return nil, nil, nil, err
	}
	guard, err := paymentswebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, "payments")
	if err != nil {
		return nil, nil, nil, err
	}

	notifier, err := notifications.NewNotifier(notifications.NotifierParams{
		Repo:      notificationsRepo,
		Publisher: pubsubClient.NotificationPublisher(),
		Logger:    logg,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	tracker, err := paymentfailures.NewTracker(failuresRepo)
	if err != nil {
		return nil, nil, nil, err
	}

	registry := paymentswebhook.NewRegistry()
	handlers, err := billing.NewHandlers(billing.HandlersParams{
		Repo:              billingRepo,
		Tracker:           tracker,
		Notifier:          notifier,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	handlers.Register(registry)

	dispatcher, err := paymentswebhook.NewDispatcher(registry, logg)
	if err != nil {
		return nil, nil, nil, err
	}

	service, err := paymentswebhook.NewService(paymentswebhook.ServiceParams{
		Verifier:   verifier,
		Ledger:     ledger,
		Dispatcher: dispatcher,
		Guard:      guard,
		Metrics:    metrics.NewWebhookMetrics(prometheus.DefaultRegisterer),
		Logger:     logg,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return service, eventsRepo, failuresRepo, nil
}
