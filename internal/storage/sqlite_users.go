package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/ivvboard/internal/models"
)

type sqliteUserRepo struct {
	db *sql.DB
}

const userColumns = `id, email, display_name, password_hash, role, approval_status, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u    models.User
		name sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &name, &u.PasswordHash, &u.Role, &u.ApprovalStatus, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.DisplayName = name.String
	return &u, nil
}

func (r *sqliteUserRepo) Create(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, nullString(u.DisplayName), u.PasswordHash, u.Role, u.ApprovalStatus, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *sqliteUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	u, err := selectOne(ctx, r.db, scanUser, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

// GetByEmail matches case-insensitively; emails are the login key.
func (r *sqliteUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := selectOne(ctx, r.db, scanUser,
		`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (r *sqliteUserRepo) Update(ctx context.Context, u *models.User) error {
	err := execOne(ctx, r.db, "user", u.ID,
		`UPDATE users
		 SET email = ?, display_name = ?, password_hash = ?, role = ?, approval_status = ?, updated_at = ?
		 WHERE id = ?`,
		u.Email, nullString(u.DisplayName), u.PasswordHash, u.Role, u.ApprovalStatus, u.UpdatedAt, u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// Delete removes the user. The schema clears projects.vendor_id for a
// deleted vendor and cascades to refresh tokens.
func (r *sqliteUserRepo) Delete(ctx context.Context, id string) error {
	if err := execOne(ctx, r.db, "user", id, `DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (r *sqliteUserRepo) List(ctx context.Context, filter UserFilter) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE (? = '' OR role = ?) AND (? = '' OR approval_status = ?)
		ORDER BY email`
	users, err := selectAll(ctx, r.db, scanUser, query,
		filter.Role, filter.Role, filter.ApprovalStatus, filter.ApprovalStatus)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *sqliteUserRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
