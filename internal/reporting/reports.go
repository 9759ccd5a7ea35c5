package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/ivvboard/internal/models"
	"github.com/good-yellow-bee/ivvboard/internal/storage"
	"github.com/good-yellow-bee/ivvboard/internal/watch"
)

// SubmitReport stores a new monthly report for a project. Derived fields are
// computed from the inputs; the baseline date comes from the project's first
// report when one exists and from r otherwise.
func (s *Service) SubmitReport(ctx context.Context, projectID string, submitter *models.User, r *models.Report) (*models.Report, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	now := s.now()
	if err := normalize(r, now); err != nil {
		return nil, err
	}

	r.ID = uuid.New().String()
	r.ProjectID = projectID
	if submitter != nil {
		r.SubmittedBy = submitter.ID
	}
	r.CreatedAt = now
	r.UpdatedAt = now

	err := s.store.Reports().Create(ctx, r, func(baseline *time.Time) error {
		if err := settleBaseline(r, baseline, time.Time{}); err != nil {
			return err
		}
		derive(r)
		return nil
	})
	if err != nil {
		return nil, wrapWriteErr("create report", err)
	}

	s.publish(ctx, watch.ReportCreated, projectID, r.ID, r)
	return r, nil
}

// UpdateReport overwrites an existing report. Identity, creation time and the
// propagated baseline are preserved.
func (s *Service) UpdateReport(ctx context.Context, projectID, reportID string, editor *models.User, r *models.Report) (*models.Report, error) {
	existing, err := s.GetReport(ctx, projectID, reportID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := normalize(r, now); err != nil {
		return nil, err
	}

	r.ID = existing.ID
	r.ProjectID = existing.ProjectID
	r.CreatedAt = existing.CreatedAt
	r.SubmittedBy = existing.SubmittedBy
	if editor != nil {
		r.SubmittedBy = editor.ID
	}
	r.UpdatedAt = now

	err = s.store.Reports().Update(ctx, r, func(baseline *time.Time) error {
		if err := settleBaseline(r, baseline, existing.Schedule.BaselineDate); err != nil {
			return err
		}
		derive(r)
		return nil
	})
	if err != nil {
		return nil, wrapWriteErr("update report", err)
	}

	s.publish(ctx, watch.ReportUpdated, projectID, r.ID, r)
	return r, nil
}

func wrapWriteErr(op string, err error) error {
	var verr *ValidationError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrReportNotFound
	case errors.Is(err, storage.ErrDuplicateMonth),
		errors.Is(err, ErrBaselineRequired),
		errors.As(err, &verr):
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// DeleteReport removes a report.
func (s *Service) DeleteReport(ctx context.Context, projectID, reportID string) error {
	if _, err := s.GetReport(ctx, projectID, reportID); err != nil {
		return err
	}
	if err := s.store.Reports().Delete(ctx, projectID, reportID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrReportNotFound
		}
		return fmt.Errorf("delete report: %w", err)
	}
	s.publish(ctx, watch.ReportDeleted, projectID, reportID, nil)
	return nil
}

// GetReport returns the report or ErrReportNotFound.
func (s *Service) GetReport(ctx context.Context, projectID, reportID string) (*models.Report, error) {
	report, err := s.store.Reports().GetByID(ctx, projectID, reportID)
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	if report == nil {
		return nil, ErrReportNotFound
	}
	return report, nil
}

// ListReports returns a project's reports, newest month first.
func (s *Service) ListReports(ctx context.Context, projectID string) ([]*models.Report, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	reports, err := s.store.Reports().ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}
