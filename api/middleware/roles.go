package middleware

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/fintrack-backend/api/responses"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
)

func RequireRole(role enums.ActorRole, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if RoleFromContext(r.Context()) != role {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSelfOrAdmin lets a subscriber address only its own id in the named
// URL parameter. Admins pass through.
func RequireSelfOrAdmin(param string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if IsAdmin(ctx) {
				next.ServeHTTP(w, r)
				return
			}
			target, err := strconv.ParseUint(chi.URLParam(r, param), 10, 64)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+param))
				return
			}
			if caller := SubscriberIDFromContext(ctx); caller == 0 || caller != target {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "subscribers may only access their own resources"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
