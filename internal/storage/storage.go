// Package storage provides the persistence adapter: repository interfaces
// with SQLite and Firestore implementations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/ivvboard/internal/models"
)

// ErrNotFound is wrapped by Update and Delete when the target does not exist.
// Lookups return nil, nil instead.
var ErrNotFound = errors.New("not found")

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// ErrDuplicateMonth is returned when a project already has a report for the month.
var ErrDuplicateMonth = errors.New("report for this month already exists")

// ErrTokenInactive is returned by Rotate when the presented refresh token is
// unknown, expired or already revoked.
var ErrTokenInactive = errors.New("refresh token is not active")

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate brings the schema up to date. It is a no-op for schemaless backends.
	Migrate() error
	// EnsureStaffUser creates an approved ets account when no users exist and
	// returns its generated password. It returns "" when users already exist.
	EnsureStaffUser(email string) (string, error)

	Users() UserRepository
	Projects() ProjectRepository
	Reports() ReportRepository
	Tokens() TokenRepository
}

// UserFilter narrows user listings. Zero values match everything.
type UserFilter struct {
	Role           models.Role
	ApprovalStatus models.ApprovalStatus
}

// UserRepository defines operations for user management.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter UserFilter) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
}

// ProjectRepository defines operations for project management.
// Delete cascades to the project's reports.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	GetByName(ctx context.Context, name string) (*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Project, error)
	ListByVendor(ctx context.Context, vendorID string) ([]*models.Project, error)
}

// PrepareFunc finalizes a report inside the write transaction. baseline is
// the baseline date already established by another report of the same
// project, or nil when the report being written is the only one.
type PrepareFunc func(baseline *time.Time) error

// ReportRepository defines operations for reports. Create and Update call
// prepare atomically with the write so concurrent submissions observe a
// single established baseline.
type ReportRepository interface {
	Create(ctx context.Context, report *models.Report, prepare PrepareFunc) error
	Update(ctx context.Context, report *models.Report, prepare PrepareFunc) error
	GetByID(ctx context.Context, projectID, id string) (*models.Report, error)
	ListByProject(ctx context.Context, projectID string) ([]*models.Report, error)
	Delete(ctx context.Context, projectID, id string) error
}

// TokenRepository defines operations for refresh token management.
type TokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	// Rotate atomically revokes the active token with oldHash and stores next
	// as its replacement. It returns ErrTokenInactive if oldHash is not active.
	Rotate(ctx context.Context, oldHash string, next *models.RefreshToken) error
	RevokeByTokenHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}
