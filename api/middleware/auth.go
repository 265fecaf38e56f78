package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/fintrack-backend/api/responses"
	pkgAuth "github.com/angelmondragon/fintrack-backend/pkg/auth"
	"github.com/angelmondragon/fintrack-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/fintrack-backend/pkg/errors"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.SubscriberID == 0 && !claims.IsAdmin() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "token is not bound to a subscriber"))
				return
			}

			ctx := WithPrincipal(r.Context(), claims.SubscriberID, claims.Role)
			if logg != nil {
				ctx = logg.WithActorRole(ctx, string(claims.Role))
				if claims.SubscriberID != 0 {
					ctx = logg.WithSubscriberID(ctx, claims.SubscriberID)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) string {
	token := strings.TrimSpace(header)
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
