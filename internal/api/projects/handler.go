// Package projects serves the project directory: public summaries, the
// role-filtered staff and vendor listing, and ets project administration.
package projects

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/ivvboard/internal/api/middleware"
	"github.com/good-yellow-bee/ivvboard/internal/api/respond"
	"github.com/good-yellow-bee/ivvboard/internal/models"
	"github.com/good-yellow-bee/ivvboard/internal/reporting"
)

// serviceError maps reporting errors onto the JSON envelope.
func serviceError(w http.ResponseWriter, op string, err error) {
	var verr *reporting.ValidationError
	switch {
	case errors.As(err, &verr):
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, verr.Message)
	case errors.Is(err, reporting.ErrProjectNotFound), errors.Is(err, reporting.ErrUserNotFound):
		respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "not found")
	case errors.Is(err, reporting.ErrDuplicateName):
		respond.Error(w, http.StatusConflict, respond.CodeConflict, err.Error())
	default:
		zap.L().Error(op, zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "internal server error")
	}
}

// ProjectResponse is the full project record shown to staff and vendors.
type ProjectResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Status      string          `json:"status"`
	StatusColor string          `json:"status_color"`
	Description string          `json:"description,omitempty"`
	Department  string          `json:"department,omitempty"`
	StartDate   *time.Time      `json:"start_date,omitempty"`
	EndDate     *time.Time      `json:"end_date,omitempty"`
	Budget      decimal.Decimal `json:"budget"`
	Spent       decimal.Decimal `json:"spent"`
	VendorID    string          `json:"vendor_id,omitempty"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

// Handler serves project endpoints.
type Handler struct {
	service *reporting.Service
	now     func() time.Time
}

// NewHandler creates a new project handler.
func NewHandler(service *reporting.Service) *Handler {
	return &Handler{service: service, now: time.Now}
}

// ProjectRequest is the request body for creating or updating a project.
// Dates are RFC 3339 timestamps.
type ProjectRequest struct {
	Name        string          `json:"name"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	Department  string          `json:"department"`
	StartDate   *time.Time      `json:"start_date"`
	EndDate     *time.Time      `json:"end_date"`
	Budget      decimal.Decimal `json:"budget"`
	Spent       decimal.Decimal `json:"spent"`
}

func (req *ProjectRequest) input() reporting.ProjectInput {
	return reporting.ProjectInput{
		Name:        req.Name,
		Status:      req.Status,
		Description: req.Description,
		Department:  req.Department,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Budget:      req.Budget,
		Spent:       req.Spent,
	}
}

// AssignVendorRequest is the request body for assigning a vendor. An empty
// vendor_id unassigns the project.
type AssignVendorRequest struct {
	VendorID string `json:"vendor_id"`
}

// PublicList returns summaries of every project. No vendor data is exposed.
func (h *Handler) PublicList(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.ListProjects(r.Context(), nil)
	if err != nil {
		serviceError(w, "list public projects", err)
		return
	}

	asOf := h.now()
	resp := make([]reporting.ProjectSummary, len(projects))
	for i, p := range projects {
		resp[i] = reporting.Summarize(p, asOf)
	}
	respond.OK(w, resp)
}

// PublicGet returns the summary of one project.
func (h *Handler) PublicGet(w http.ResponseWriter, r *http.Request) {
	project, err := h.service.GetProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, "get public project", err)
		return
	}
	respond.OK(w, reporting.Summarize(project, h.now()))
}

// List returns every project for ets staff and the assigned projects for vendors.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projects, err := h.service.ListProjects(ctx, middleware.GetUser(ctx))
	if err != nil {
		serviceError(w, "list projects", err)
		return
	}

	resp := make([]*ProjectResponse, len(projects))
	for i, p := range projects {
		resp[i] = projectToResponse(p)
	}
	respond.OK(w, resp)
}

// GetByID returns the project loaded by the assignment gate.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	project := middleware.GetProject(r.Context())
	if project == nil {
		respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "not found")
		return
	}
	respond.OK(w, projectToResponse(project))
}

// Create creates a new project (ets only).
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	project, err := h.service.CreateProject(r.Context(), req.input())
	if err != nil {
		serviceError(w, "create project", err)
		return
	}

	zap.L().Info("project created",
		zap.String("project_id", project.ID),
		zap.String("name", project.Name),
		zap.String("by", middleware.GetUserID(r.Context())),
	)
	respond.Created(w, projectToResponse(project))
}

// Update overwrites a project's writable fields (ets only).
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	project, err := h.service.UpdateProject(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		serviceError(w, "update project", err)
		return
	}

	zap.L().Info("project updated", zap.String("project_id", project.ID))
	respond.OK(w, projectToResponse(project))
}

// AssignVendor sets or clears the vendor of a project (ets only).
func (h *Handler) AssignVendor(w http.ResponseWriter, r *http.Request) {
	var req AssignVendorRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	project, err := h.service.AssignVendor(r.Context(), chi.URLParam(r, "id"), req.VendorID)
	if err != nil {
		serviceError(w, "assign vendor", err)
		return
	}

	zap.L().Info("vendor assigned",
		zap.String("project_id", project.ID),
		zap.String("vendor_id", project.VendorID),
	)
	respond.OK(w, projectToResponse(project))
}

// Delete deletes a project and its reports (ets only).
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeleteProject(r.Context(), id); err != nil {
		serviceError(w, "delete project", err)
		return
	}

	zap.L().Info("project deleted", zap.String("project_id", id))
	respond.NoContent(w)
}

func projectToResponse(p *models.Project) *ProjectResponse {
	return &ProjectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Status:      string(p.Status),
		StatusColor: p.StatusColor,
		Description: p.Description,
		Department:  p.Department,
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
		Budget:      p.Budget,
		Spent:       p.Spent,
		VendorID:    p.VendorID,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}
