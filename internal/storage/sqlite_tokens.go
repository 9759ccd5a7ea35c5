package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/ivvboard/internal/models"
)

const tokenColumns = `id, user_id, token_hash, expires_at, created_at, revoked, revoked_at, replaced_by`

type sqliteTokenRepo struct {
	db *sql.DB
}

func insertToken(ctx context.Context, db execer, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (`+tokenColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt,
		boolToInt(token.Revoked), nullTime(token.RevokedAt), token.ReplacedBy,
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *sqliteTokenRepo) Create(ctx context.Context, token *models.RefreshToken) error {
	return insertToken(ctx, r.db, token)
}

func (r *sqliteTokenRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var (
		token     models.RefreshToken
		revoked   int
		revokedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = ?`, tokenHash,
	).Scan(
		&token.ID, &token.UserID, &token.TokenHash, &token.ExpiresAt, &token.CreatedAt,
		&revoked, &revokedAt, &token.ReplacedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query refresh token: %w", err)
	}

	token.Revoked = revoked != 0
	token.RevokedAt = timePtr(revokedAt)
	return &token, nil
}

// Rotate spends the token with oldHash and stores next in one transaction,
// so two concurrent refreshes with the same token cannot both succeed.
func (r *sqliteTokenRepo) Rotate(ctx context.Context, oldHash string, next *models.RefreshToken) error {
	if next.ID == "" {
		next.ID = uuid.New().String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotate: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, revoked_at = ?, replaced_by = ?
		WHERE token_hash = ? AND revoked = 0 AND expires_at > ?
	`, now, next.ID, oldHash, now)
	if err != nil {
		return fmt.Errorf("spend refresh token: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("spend refresh token: %w", err)
	} else if n == 0 {
		return ErrTokenInactive
	}

	if err := insertToken(ctx, tx, next); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rotate: %w", err)
	}
	return nil
}

func (r *sqliteTokenRepo) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, revoked_at = ? WHERE token_hash = ? AND revoked = 0`,
		time.Now(), tokenHash)
	if err != nil {
		return fmt.Errorf("revoke token by hash: %w", err)
	}
	return nil
}

func (r *sqliteTokenRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, revoked_at = ? WHERE user_id = ? AND revoked = 0`,
		time.Now(), userID)
	if err != nil {
		return fmt.Errorf("revoke all tokens for user: %w", err)
	}
	return nil
}

// DeleteExpired removes tokens past expiry. Revoked tokens are kept until
// they expire so a replayed rotated token can still be recognized.
func (r *sqliteTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < ?`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return res.RowsAffected()
}
