package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/fintrack-backend/api/responses"
	"github.com/angelmondragon/fintrack-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
)

// Pinger is a dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Fintrack-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and redis; either failing reports 503.
func HealthReady(cfg *config.Config, database, cache Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("X-Fintrack-Env", cfg.App.Env)
		checks := map[string]Pinger{"database": database, "redis": cache}
		for name, dep := range checks {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unreachable").
					WithDetails(map[string]any{"dependency": name}))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
