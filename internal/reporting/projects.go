package reporting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/good-yellow-bee/ivvboard/internal/models"
	"github.com/good-yellow-bee/ivvboard/internal/storage"
	"github.com/good-yellow-bee/ivvboard/internal/watch"
)

const maxNameLength = 200

// ProjectInput is the writable part of a project.
type ProjectInput struct {
	Name        string
	Status      string
	Description string
	Department  string
	StartDate   *time.Time
	EndDate     *time.Time
	Budget      decimal.Decimal
	Spent       decimal.Decimal
}

func (in *ProjectInput) validate() (models.ProjectStatus, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return "", invalid("name", "name is required")
	}
	if len(in.Name) > maxNameLength {
		return "", invalid("name", "name must be %d characters or less", maxNameLength)
	}

	status, ok := models.ParseProjectStatus(in.Status)
	if !ok {
		return "", invalid("status", "status must be one of %s", joinStatuses())
	}

	if in.Budget.IsNegative() {
		return "", invalid("budget", "budget must not be negative")
	}
	if in.Spent.IsNegative() {
		return "", invalid("spent", "spent must not be negative")
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return "", invalid("end_date", "end date must not be before start date")
	}
	return status, nil
}

func joinStatuses() string {
	names := make([]string, len(models.ProjectStatuses))
	for i, s := range models.ProjectStatuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

func (in *ProjectInput) apply(p *models.Project, status models.ProjectStatus) {
	p.Name = in.Name
	p.SetStatus(status)
	p.Description = strings.TrimSpace(in.Description)
	p.Department = strings.TrimSpace(in.Department)
	p.StartDate = in.StartDate
	p.EndDate = in.EndDate
	p.Budget = in.Budget
	p.Spent = in.Spent
}

// CreateProject validates in and stores a new project.
func (s *Service) CreateProject(ctx context.Context, in ProjectInput) (*models.Project, error) {
	status, err := in.validate()
	if err != nil {
		return nil, err
	}

	existing, err := s.store.Projects().GetByName(ctx, in.Name)
	if err != nil {
		return nil, fmt.Errorf("check project name: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateName
	}

	now := s.now()
	project := &models.Project{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.apply(project, status)

	if err := s.store.Projects().Create(ctx, project); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	s.publish(ctx, watch.ProjectCreated, project.ID, "", project)
	return project, nil
}

// UpdateProject overwrites the writable fields of a project. The vendor
// assignment is left untouched.
func (s *Service) UpdateProject(ctx context.Context, id string, in ProjectInput) (*models.Project, error) {
	status, err := in.validate()
	if err != nil {
		return nil, err
	}

	project, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != project.Name {
		existing, err := s.store.Projects().GetByName(ctx, in.Name)
		if err != nil {
			return nil, fmt.Errorf("check project name: %w", err)
		}
		if existing != nil && existing.ID != id {
			return nil, ErrDuplicateName
		}
	}

	in.apply(project, status)
	project.UpdatedAt = s.now()

	if err := s.store.Projects().Update(ctx, project); err != nil {
		return nil, projectWriteErr("update project", err)
	}

	s.publish(ctx, watch.ProjectUpdated, project.ID, "", project)
	return project, nil
}

// AssignVendor sets the vendor responsible for a project. An empty vendorID
// clears the assignment.
func (s *Service) AssignVendor(ctx context.Context, projectID, vendorID string) (*models.Project, error) {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	vendorID = strings.TrimSpace(vendorID)
	if vendorID != "" {
		vendor, err := s.store.Users().GetByID(ctx, vendorID)
		if err != nil {
			return nil, fmt.Errorf("get vendor: %w", err)
		}
		if vendor == nil {
			return nil, ErrUserNotFound
		}
		if !vendor.IsVendor() {
			return nil, invalid("vendor_id", "user is not a vendor")
		}
	}

	project.VendorID = vendorID
	project.UpdatedAt = s.now()
	if err := s.store.Projects().Update(ctx, project); err != nil {
		return nil, projectWriteErr("update project", err)
	}

	s.publish(ctx, watch.ProjectUpdated, project.ID, "", project)
	return project, nil
}

// DeleteProject removes a project and all of its reports.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	if _, err := s.GetProject(ctx, id); err != nil {
		return err
	}
	if err := s.store.Projects().Delete(ctx, id); err != nil {
		return projectWriteErr("delete project", err)
	}
	s.publish(ctx, watch.ProjectDeleted, id, "", nil)
	return nil
}

// GetProject returns the project or ErrProjectNotFound.
func (s *Service) GetProject(ctx context.Context, id string) (*models.Project, error) {
	project, err := s.store.Projects().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}
	return project, nil
}

// ListProjects returns every project for ets users and only the assigned
// projects for vendors.
func (s *Service) ListProjects(ctx context.Context, user *models.User) ([]*models.Project, error) {
	if user != nil && user.IsVendor() {
		projects, err := s.store.Projects().ListByVendor(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("list vendor projects: %w", err)
		}
		return projects, nil
	}
	projects, err := s.store.Projects().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// projectWriteErr reports a project deleted between lookup and write as
// ErrProjectNotFound.
func projectWriteErr(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrProjectNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
