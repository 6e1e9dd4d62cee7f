package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/crewboard/crewboard-backend/api/responses"
	"github.com/crewboard/crewboard-backend/pkg/config"
	pkgerrors "github.com/crewboard/crewboard-backend/pkg/errors"
	"github.com/crewboard/crewboard-backend/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Crewboard-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady checks the backing services the API cannot run without. A nil
// pinger is skipped so partial deployments still report ready.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Crewboard-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{}
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "unreachable"
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unreachable").WithDetails(checks))
				return
			}
			checks[name] = "ok"
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

// ReadyDeps builds the dependency map for HealthReady in wiring order.
func ReadyDeps(db, redis, gcs pinger) map[string]pinger {
	return map[string]pinger{
		"db":    db,
		"redis": redis,
		"gcs":   gcs,
	}
}
