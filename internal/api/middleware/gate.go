package middleware

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/ivvboard/internal/api/respond"
	"github.com/good-yellow-bee/ivvboard/internal/metrics"
	"github.com/good-yellow-bee/ivvboard/internal/models"
	"github.com/good-yellow-bee/ivvboard/internal/storage"
)

// UserLookup is the subset of storage.UserRepository the gate needs.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

var _ UserLookup = storage.UserRepository(nil)

// LoadUser resolves the token subject to the stored account and places it in
// the request context. Role and approval always come from storage, never from
// the token. Must run after JWTAuth.
func LoadUser(users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r.Context())
			if userID == "" {
				jsonUnauthorized(w)
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil {
				zap.L().Error("load user", zap.String("user_id", userID), zap.Error(err))
				respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "internal server error")
				return
			}
			if user == nil {
				jsonUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireRole admits the loaded user when their role is one of allowed and,
// for roles that need it, their account is approved.
func RequireRole(allowed ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			if user == nil {
				jsonUnauthorized(w)
				return
			}

			if !hasRole(user.Role, allowed) {
				jsonForbidden(w, "forbidden")
				return
			}

			if !user.IsApproved() {
				msg := "account is awaiting approval"
				if user.ApprovalStatus == models.ApprovalDenied {
					msg = "account approval was denied"
				}
				jsonForbiddenPending(w, msg)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func jsonForbiddenPending(w http.ResponseWriter, msg string) {
	metrics.GateDenialsTotal.WithLabelValues("pending_approval").Inc()
	respond.Error(w, http.StatusForbidden, respond.CodePendingApproval, msg)
}

func hasRole(role models.Role, allowed []models.Role) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

// RequireETS is shorthand for RequireRole(RoleETS).
func RequireETS(next http.Handler) http.Handler {
	return RequireRole(models.RoleETS)(next)
}

// RequireStaffOrVendor is shorthand for RequireRole(RoleETS, RoleVendor).
func RequireStaffOrVendor(next http.Handler) http.Handler {
	return RequireRole(models.RoleETS, models.RoleVendor)(next)
}

// WithUser stores the principal in ctx.
func WithUser(ctx context.Context, user *models.User) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	if GetUserID(ctx) == "" {
		ctx = context.WithValue(ctx, userIDKey, user.ID)
	}
	return ctx
}

// GetUser returns the principal loaded by LoadUser.
func GetUser(ctx context.Context) *models.User {
	if v := ctx.Value(userKey); v != nil {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}
