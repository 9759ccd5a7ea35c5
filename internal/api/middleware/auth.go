package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/ivvboard/internal/api/auth"
	"github.com/good-yellow-bee/ivvboard/internal/api/respond"
	"github.com/good-yellow-bee/ivvboard/internal/metrics"
)

// Context keys for storing request identity.
type contextKey string

const (
	userIDKey  contextKey = "user_id"
	claimsKey  contextKey = "claims"
	userKey    contextKey = "user"
	projectKey contextKey = "project"
)

// jsonUnauthorized writes an unauthorized error response.
func jsonUnauthorized(w http.ResponseWriter) {
	metrics.GateDenialsTotal.WithLabelValues("unauthenticated").Inc()
	respond.Error(w, http.StatusUnauthorized, respond.CodeUnauthorized, "invalid or expired token")
}

// jsonForbidden writes a forbidden error response.
func jsonForbidden(w http.ResponseWriter, reason string) {
	metrics.GateDenialsTotal.WithLabelValues(reason).Inc()
	respond.Error(w, http.StatusForbidden, respond.CodeForbidden, "access denied")
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// QueryToken copies an access_token query parameter into the Authorization
// header when none is present. Browsers cannot set headers on EventSource
// and WebSocket requests, so it is mounted on streaming routes only.
func QueryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if token := r.URL.Query().Get("access_token"); token != "" {
				r = r.Clone(r.Context())
				r.Header.Set("Authorization", "Bearer "+token)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// JWTAuth returns middleware that validates JWT access tokens.
func JWTAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := BearerToken(r)
			if !ok {
				jsonUnauthorized(w)
				return
			}

			claims, err := jwtService.ValidateToken(tokenString)
			if err != nil {
				zap.L().Debug("jwt auth failed",
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				if errors.Is(err, auth.ErrTokenExpired) {
					metrics.GateDenialsTotal.WithLabelValues("unauthenticated").Inc()
					respond.Error(w, http.StatusUnauthorized, respond.CodeTokenExpired, "access token expired")
					return
				}
				jsonUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			ctx = context.WithValue(ctx, claimsKey, claims)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID returns the authenticated user ID, or "" outside JWTAuth.
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// GetClaims returns the validated access token claims, or nil.
func GetClaims(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey).(*auth.Claims)
	return c
}
