package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/ivvboard/internal/api/respond"
	"github.com/good-yellow-bee/ivvboard/internal/models"
)

// ProjectLookup is the subset of storage.ProjectRepository the assignment
// gate needs.
type ProjectLookup interface {
	GetByID(ctx context.Context, id string) (*models.Project, error)
}

// CanAccessProject reports whether user may read and write reports of p.
// ETS staff reach every project; a vendor only the projects assigned to them.
func CanAccessProject(user *models.User, p *models.Project) bool {
	if user == nil || p == nil || !user.IsApproved() {
		return false
	}
	switch user.Role {
	case models.RoleETS:
		return true
	case models.RoleVendor:
		return p.VendorID != "" && p.VendorID == user.ID
	default:
		return false
	}
}

// RequireProjectAccess loads the project named by the {id} URL parameter and
// admits only users for whom CanAccessProject holds. The project is placed in
// the request context. Must run after LoadUser.
func RequireProjectAccess(projects ProjectLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			if user == nil {
				jsonUnauthorized(w)
				return
			}

			projectID := chi.URLParam(r, "id")
			project, err := projects.GetByID(r.Context(), projectID)
			if err != nil {
				zap.L().Error("load project", zap.String("project_id", projectID), zap.Error(err))
				respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "internal server error")
				return
			}
			if project == nil {
				respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "not found")
				return
			}

			if !CanAccessProject(user, project) {
				zap.L().Info("project access denied",
					zap.String("user_id", user.ID),
					zap.String("project_id", project.ID),
				)
				jsonForbidden(w, "not_assigned")
				return
			}

			ctx := context.WithValue(r.Context(), projectKey, project)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetProject returns the project loaded by RequireProjectAccess.
func GetProject(ctx context.Context) *models.Project {
	if v := ctx.Value(projectKey); v != nil {
		if p, ok := v.(*models.Project); ok {
			return p
		}
	}
	return nil
}
