// Package reports serves the monthly reports of a project. Every route runs
// behind the project assignment gate, which places the project in the
// request context.
package reports

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/ivvboard/internal/api/middleware"
	"github.com/good-yellow-bee/ivvboard/internal/api/respond"
	"github.com/good-yellow-bee/ivvboard/internal/export"
	"github.com/good-yellow-bee/ivvboard/internal/metrics"
	"github.com/good-yellow-bee/ivvboard/internal/models"
	"github.com/good-yellow-bee/ivvboard/internal/reporting"
)

// serviceError maps reporting errors onto the JSON envelope.
func serviceError(w http.ResponseWriter, op string, err error) {
	var verr *reporting.ValidationError
	switch {
	case errors.As(err, &verr):
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, verr.Error())
	case errors.Is(err, reporting.ErrBaselineRequired):
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, err.Error())
	case errors.Is(err, reporting.ErrDuplicateMonth):
		respond.Error(w, http.StatusConflict, respond.CodeConflict, err.Error())
	case errors.Is(err, reporting.ErrProjectNotFound), errors.Is(err, reporting.ErrReportNotFound):
		respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "not found")
	default:
		zap.L().Error(op, zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "internal server error")
	}
}

// Handler serves report endpoints.
type Handler struct {
	service *reporting.Service
	export  export.Options
}

// NewHandler creates a new report handler.
func NewHandler(service *reporting.Service, opts export.Options) *Handler {
	return &Handler{service: service, export: opts}
}

// project returns the gated project, writing 404 when the gate did not run.
func project(w http.ResponseWriter, r *http.Request) *models.Project {
	p := middleware.GetProject(r.Context())
	if p == nil {
		respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "not found")
	}
	return p
}

func recordWrite(op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.ReportWritesTotal.WithLabelValues(op, result).Inc()
}

// List returns the project's reports, newest month first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p := project(w, r)
	if p == nil {
		return
	}

	reports, err := h.service.ListReports(r.Context(), p.ID)
	if err != nil {
		serviceError(w, "list reports", err)
		return
	}
	if reports == nil {
		reports = []*models.Report{}
	}
	respond.OK(w, reports)
}

// Get returns a report together with its viewer figures.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p := project(w, r)
	if p == nil {
		return
	}

	report, err := h.service.GetReport(r.Context(), p.ID, chi.URLParam(r, "reportId"))
	if err != nil {
		serviceError(w, "get report", err)
		return
	}
	respond.OK(w, reporting.BuildView(p, report))
}

// Submit stores a new report. Derived fields and the baseline date are
// computed server side; client-supplied values for them are ignored.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	p := project(w, r)
	if p == nil {
		return
	}

	var req models.Report
	if !respond.Decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	report, err := h.service.SubmitReport(ctx, p.ID, middleware.GetUser(ctx), &req)
	recordWrite("create", err)
	if err != nil {
		serviceError(w, "submit report", err)
		return
	}

	zap.L().Info("report submitted",
		zap.String("project_id", p.ID),
		zap.String("report_id", report.ID),
		zap.String("month", report.ReportMonth),
		zap.String("by", report.SubmittedBy),
	)
	respond.Created(w, reporting.BuildView(p, report))
}

// Update overwrites an existing report.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	p := project(w, r)
	if p == nil {
		return
	}

	var req models.Report
	if !respond.Decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	report, err := h.service.UpdateReport(ctx, p.ID, chi.URLParam(r, "reportId"), middleware.GetUser(ctx), &req)
	recordWrite("update", err)
	if err != nil {
		serviceError(w, "update report", err)
		return
	}

	zap.L().Info("report updated",
		zap.String("project_id", p.ID),
		zap.String("report_id", report.ID),
	)
	respond.OK(w, reporting.BuildView(p, report))
}

// Delete removes a report.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	p := project(w, r)
	if p == nil {
		return
	}

	reportID := chi.URLParam(r, "reportId")
	err := h.service.DeleteReport(r.Context(), p.ID, reportID)
	recordWrite("delete", err)
	if err != nil {
		serviceError(w, "delete report", err)
		return
	}

	zap.L().Info("report deleted", zap.String("project_id", p.ID), zap.String("report_id", reportID))
	respond.NoContent(w)
}

// Export downloads a report as ?format=docx|md|pdf.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	p := project(w, r)
	if p == nil {
		return
	}

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeBadRequest, err.Error())
		return
	}

	report, err := h.service.GetReport(r.Context(), p.ID, chi.URLParam(r, "reportId"))
	if err != nil {
		serviceError(w, "export report", err)
		return
	}

	// Rendered into memory so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := export.Render(&buf, format, export.Build(p, report), h.export); err != nil {
		if errors.Is(err, export.ErrPDFUnavailable) {
			respond.Error(w, http.StatusNotImplemented, respond.CodeNotImplemented, err.Error())
			return
		}
		zap.L().Error("render export", zap.String("format", string(format)), zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "internal server error")
		return
	}

	metrics.ExportsTotal.WithLabelValues(string(format)).Inc()
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(p, report, format)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		zap.L().Warn("write export", zap.Error(err))
	}
}
