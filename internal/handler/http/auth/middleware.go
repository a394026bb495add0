// Package auth guards the admin API with HS256 bearer tokens.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"engage-notify/internal/handler/http/respond"
)

type ctxKey struct{}

// ClaimsFromContext returns the caller's claims, or nil on public routes.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(ctxKey{}).(*Claims)
	return c
}

// Authz rejects requests to non-public endpoints that lack a valid token
// or whose role does not permit the method and path.
func Authz(secret []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			claims, err := ParseBearer(r.Header.Get("Authorization"), secret)
			authzCheckDuration.Observe(time.Since(start).Seconds())
			if err != nil {
				authzDecisions.WithLabelValues("unauthorized").Inc()
				logger.Debug("rejected token", slog.String("path", r.URL.Path), slog.Any("error", err))
				respond.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !Allowed(claims.Role, r.Method, r.URL.Path) {
				authzDecisions.WithLabelValues("forbidden").Inc()
				logger.Warn("forbidden request",
					slog.String("subject", claims.Subject),
					slog.String("role", claims.Role),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				respond.Error(w, http.StatusForbidden, "forbidden")
				return
			}
			authzDecisions.WithLabelValues("allowed").Inc()
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
		})
	}
}
