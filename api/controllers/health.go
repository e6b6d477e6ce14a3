package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/practivahq/practiva-backend/api/responses"
	"github.com/practivahq/practiva-backend/pkg/config"
	"github.com/practivahq/practiva-backend/pkg/db"
	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
	"github.com/practivahq/practiva-backend/pkg/logger"
	"github.com/practivahq/practiva-backend/pkg/redis"
)

const readinessTimeout = 2 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Practiva-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady answers 200 only when the backing stores respond. Redis is
// optional infrastructure for the webhook path, but a worker without it
// cannot hold the cron lock, so readiness still checks it.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		w.Header().Set("X-Practiva-Env", cfg.App.Env)

		if dbP != nil {
			if err := dbP.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unreachable"))
				return
			}
		}
		if redisP != nil {
			if err := redisP.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unreachable"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
