package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/ivvboard/internal/models"
)

type sqliteReportRepo struct {
	db *sql.DB
}

const reportColumns = `id, project_id, report_month, report_date, background,
	assessment_json, issues_json, schedule_json, financials_json, scope_json,
	baseline_date, submitted_by, created_at, updated_at`

// reportSections is the JSON form of a report's nested sections.
type reportSections struct {
	assessment, issues, schedule, financials, scope []byte
}

func encodeSections(r *models.Report) (*reportSections, error) {
	issues := r.Issues
	if issues == nil {
		issues = []models.Issue{}
	}
	var (
		s   reportSections
		err error
	)
	if s.assessment, err = json.Marshal(r.Assessment); err != nil {
		return nil, fmt.Errorf("encode assessment: %w", err)
	}
	if s.issues, err = json.Marshal(issues); err != nil {
		return nil, fmt.Errorf("encode issues: %w", err)
	}
	if s.schedule, err = json.Marshal(r.Schedule); err != nil {
		return nil, fmt.Errorf("encode schedule: %w", err)
	}
	if s.financials, err = json.Marshal(r.Financials); err != nil {
		return nil, fmt.Errorf("encode financials: %w", err)
	}
	if s.scope, err = json.Marshal(r.Scope); err != nil {
		return nil, fmt.Errorf("encode scope: %w", err)
	}
	return &s, nil
}

func scanReport(row rowScanner) (*models.Report, error) {
	report := &models.Report{}
	var (
		background, submittedBy sql.NullString
		s                       reportSections
		baseline                sql.NullTime
	)
	err := row.Scan(
		&report.ID, &report.ProjectID, &report.ReportMonth, &report.ReportDate, &background,
		&s.assessment, &s.issues, &s.schedule, &s.financials, &s.scope,
		&baseline, &submittedBy, &report.CreatedAt, &report.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	report.Background = background.String
	report.SubmittedBy = submittedBy.String

	if err := json.Unmarshal(s.assessment, &report.Assessment); err != nil {
		return nil, fmt.Errorf("decode assessment: %w", err)
	}
	if err := json.Unmarshal(s.issues, &report.Issues); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}
	if err := json.Unmarshal(s.schedule, &report.Schedule); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	if err := json.Unmarshal(s.financials, &report.Financials); err != nil {
		return nil, fmt.Errorf("decode financials: %w", err)
	}
	if err := json.Unmarshal(s.scope, &report.Scope); err != nil {
		return nil, fmt.Errorf("decode scope: %w", err)
	}
	return report, nil
}

// Create inserts a report. The month uniqueness check, the baseline lookup,
// prepare and the insert share one transaction.
func (r *sqliteReportRepo) Create(ctx context.Context, report *models.Report, prepare PrepareFunc) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	return r.write(ctx, report, prepare, func(tx *sql.Tx, s *reportSections) error {
		query := `INSERT INTO reports (` + reportColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err := tx.ExecContext(ctx, query,
			report.ID, report.ProjectID, report.ReportMonth, report.ReportDate,
			nullString(report.Background),
			string(s.assessment), string(s.issues), string(s.schedule),
			string(s.financials), string(s.scope),
			report.Schedule.BaselineDate, nullString(report.SubmittedBy),
			report.CreatedAt, report.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		return nil
	})
}

// Update replaces a report's content under the same transactional rules as Create.
func (r *sqliteReportRepo) Update(ctx context.Context, report *models.Report, prepare PrepareFunc) error {
	return r.write(ctx, report, prepare, func(tx *sql.Tx, s *reportSections) error {
		query := `
			UPDATE reports SET report_month = ?, report_date = ?, background = ?,
				assessment_json = ?, issues_json = ?, schedule_json = ?,
				financials_json = ?, scope_json = ?, baseline_date = ?,
				submitted_by = ?, updated_at = ?
			WHERE id = ? AND project_id = ?
		`
		err := execOne(ctx, tx, "report", report.ID, query,
			report.ReportMonth, report.ReportDate, nullString(report.Background),
			string(s.assessment), string(s.issues), string(s.schedule),
			string(s.financials), string(s.scope), report.Schedule.BaselineDate,
			nullString(report.SubmittedBy), report.UpdatedAt,
			report.ID, report.ProjectID,
		)
		if err != nil {
			return fmt.Errorf("update report: %w", err)
		}
		return nil
	})
}

func (r *sqliteReportRepo) write(
	ctx context.Context,
	report *models.Report,
	prepare PrepareFunc,
	exec func(tx *sql.Tx, s *reportSections) error,
) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var dup int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports WHERE project_id = ? AND report_month = ? AND id != ?`,
		report.ProjectID, report.ReportMonth, report.ID,
	).Scan(&dup)
	if err != nil {
		return fmt.Errorf("check report month: %w", err)
	}
	if dup > 0 {
		return ErrDuplicateMonth
	}

	var baseline sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT baseline_date FROM reports WHERE project_id = ? AND id != ?
		 ORDER BY created_at ASC, id ASC LIMIT 1`,
		report.ProjectID, report.ID,
	).Scan(&baseline)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("get baseline: %w", err)
	}

	if prepare != nil {
		if err := prepare(timePtr(baseline)); err != nil {
			return err
		}
	}

	sections, err := encodeSections(report)
	if err != nil {
		return err
	}
	if err := exec(tx, sections); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit report: %w", err)
	}
	return nil
}

func (r *sqliteReportRepo) GetByID(ctx context.Context, projectID, id string) (*models.Report, error) {
	report, err := selectOne(ctx, r.db, scanReport,
		`SELECT `+reportColumns+` FROM reports WHERE id = ? AND project_id = ?`, id, projectID)
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	return report, nil
}

// ListByProject returns the project's reports, newest month first.
func (r *sqliteReportRepo) ListByProject(ctx context.Context, projectID string) ([]*models.Report, error) {
	reports, err := selectAll(ctx, r.db, scanReport,
		`SELECT `+reportColumns+` FROM reports WHERE project_id = ?
		 ORDER BY report_month DESC, created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

func (r *sqliteReportRepo) Delete(ctx context.Context, projectID, id string) error {
	err := execOne(ctx, r.db, "report", id, `DELETE FROM reports WHERE id = ? AND project_id = ?`, id, projectID)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return nil
}
