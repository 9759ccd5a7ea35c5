package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/ivvboard/internal/models"
)

type sqliteProjectRepo struct {
	db *sql.DB
}

const projectColumns = `id, name, status, status_color, description, department,
	start_date, end_date, budget, spent, vendor_id, created_at, updated_at`

func scanProject(row rowScanner) (*models.Project, error) {
	var (
		p                  models.Project
		desc, dept, vendor sql.NullString
		start, end         sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Name, &p.Status, &p.StatusColor, &desc, &dept,
		&start, &end, &p.Budget, &p.Spent, &vendor, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Description, p.Department, p.VendorID = desc.String, dept.String, vendor.String
	p.StartDate, p.EndDate = timePtr(start), timePtr(end)
	return &p, nil
}

// projectArgs are the mutable columns in projectColumns order, after id.
func projectArgs(p *models.Project) []any {
	return []any{
		p.Name, p.Status, p.StatusColor, nullString(p.Description), nullString(p.Department),
		nullTime(p.StartDate), nullTime(p.EndDate), p.Budget, p.Spent, nullString(p.VendorID),
	}
}

func (r *sqliteProjectRepo) Create(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	args := append([]any{p.ID}, projectArgs(p)...)
	args = append(args, p.CreatedAt, p.UpdatedAt)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (r *sqliteProjectRepo) GetByID(ctx context.Context, id string) (*models.Project, error) {
	p, err := selectOne(ctx, r.db, scanProject, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return p, nil
}

func (r *sqliteProjectRepo) GetByName(ctx context.Context, name string) (*models.Project, error) {
	p, err := selectOne(ctx, r.db, scanProject, `SELECT `+projectColumns+` FROM projects WHERE name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("get project by name: %w", err)
	}
	return p, nil
}

func (r *sqliteProjectRepo) Update(ctx context.Context, p *models.Project) error {
	args := append(projectArgs(p), p.UpdatedAt, p.ID)
	err := execOne(ctx, r.db, "project", p.ID,
		`UPDATE projects
		 SET name = ?, status = ?, status_color = ?, description = ?, department = ?,
		     start_date = ?, end_date = ?, budget = ?, spent = ?, vendor_id = ?, updated_at = ?
		 WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

// Delete removes the project; reports go with it through ON DELETE CASCADE.
func (r *sqliteProjectRepo) Delete(ctx context.Context, id string) error {
	if err := execOne(ctx, r.db, "project", id, `DELETE FROM projects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

func (r *sqliteProjectRepo) List(ctx context.Context) ([]*models.Project, error) {
	projects, err := selectAll(ctx, r.db, scanProject, `SELECT `+projectColumns+` FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (r *sqliteProjectRepo) ListByVendor(ctx context.Context, vendorID string) ([]*models.Project, error) {
	projects, err := selectAll(ctx, r.db, scanProject,
		`SELECT `+projectColumns+` FROM projects WHERE vendor_id = ? ORDER BY name`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("list vendor projects: %w", err)
	}
	return projects, nil
}
