package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/practivahq/practiva-backend/api/controllers"
	opscontrollers "github.com/practivahq/practiva-backend/api/controllers/ops"
	webhookcontrollers "github.com/practivahq/practiva-backend/api/controllers/webhooks"
	"github.com/practivahq/practiva-backend/api/middleware"
	"github.com/practivahq/practiva-backend/internal/paymentfailures"
	paymentswebhook "github.com/practivahq/practiva-backend/internal/webhooks/payments"
	"github.com/practivahq/practiva-backend/pkg/config"
	"github.com/practivahq/practiva-backend/pkg/db"
	"github.com/practivahq/practiva-backend/pkg/logger"
	"github.com/practivahq/practiva-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	webhookService *paymentswebhook.Service,
	eventsRepo paymentswebhook.Repository,
	failuresRepo paymentfailures.Repository,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.PaymentsWebhook(webhookService, logg))
	})

	r.Route("/api/v1/ops", func(r chi.Router) {
		r.Use(middleware.OpsAuth(cfg.OpsAuth, logg))
		r.Get("/webhook-events", opscontrollers.ListWebhookEvents(eventsRepo, logg))
		r.Get("/payment-failures", opscontrollers.ListPaymentFailures(failuresRepo, logg))
	})

	return r
}
