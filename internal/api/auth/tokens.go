package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/ivvboard/internal/models"
	"github.com/good-yellow-bee/ivvboard/internal/storage"
)

// ErrInvalidRefreshToken is returned for unknown, expired or revoked tokens.
var ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")

// ErrRefreshTokenReused is returned when an already rotated token is
// presented again. All of the user's sessions are revoked when it happens.
var ErrRefreshTokenReused = fmt.Errorf("%w: reused after rotation", ErrInvalidRefreshToken)

// TokenService issues, rotates and revokes refresh tokens.
type TokenService struct {
	storage storage.Storage
	ttl     time.Duration
}

// NewTokenService creates a new token service.
func NewTokenService(store storage.Storage, ttl time.Duration) *TokenService {
	return &TokenService{
		storage: store,
		ttl:     ttl,
	}
}

// CreateRefreshToken stores a new refresh token for userID and returns the
// plaintext value for the client.
func (s *TokenService) CreateRefreshToken(ctx context.Context, userID string) (string, error) {
	token, plainToken, err := models.NewRefreshToken(userID, s.ttl)
	if err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}

	if err := s.storage.Tokens().Create(ctx, token); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}

	return plainToken, nil
}

// Exchange spends plainToken and returns its owner with a replacement token.
// Presenting a token that was already rotated revokes every session of its
// owner, since either the client or an attacker holds a stolen copy.
func (s *TokenService) Exchange(ctx context.Context, plainToken string) (*models.User, string, error) {
	hash := models.HashToken(plainToken)
	token, err := s.storage.Tokens().GetByTokenHash(ctx, hash)
	if err != nil {
		return nil, "", fmt.Errorf("lookup refresh token: %w", err)
	}
	if token == nil {
		return nil, "", ErrInvalidRefreshToken
	}
	if token.WasRotated() {
		s.revokeOnReuse(ctx, token.UserID)
		return nil, "", ErrRefreshTokenReused
	}
	if !token.IsValid() {
		return nil, "", ErrInvalidRefreshToken
	}

	user, err := s.storage.Users().GetByID(ctx, token.UserID)
	if err != nil {
		return nil, "", fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, "", ErrInvalidRefreshToken
	}

	next, plainNext, err := models.NewRefreshToken(user.ID, s.ttl)
	if err != nil {
		return nil, "", fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.storage.Tokens().Rotate(ctx, hash, next); err != nil {
		if errors.Is(err, storage.ErrTokenInactive) {
			// Lost a race with a concurrent exchange of the same token.
			s.revokeOnReuse(ctx, user.ID)
			return nil, "", ErrRefreshTokenReused
		}
		return nil, "", fmt.Errorf("rotate refresh token: %w", err)
	}

	return user, plainNext, nil
}

func (s *TokenService) revokeOnReuse(ctx context.Context, userID string) {
	zap.L().Warn("refresh token reuse detected, revoking all sessions", zap.String("user_id", userID))
	if err := s.RevokeAllUserTokens(ctx, userID); err != nil {
		zap.L().Error("revoke sessions after token reuse", zap.String("user_id", userID), zap.Error(err))
	}
}

// RevokeRefreshToken revokes a refresh token.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, plainToken string) error {
	return s.storage.Tokens().RevokeByTokenHash(ctx, models.HashToken(plainToken))
}

// RevokeAllUserTokens revokes all refresh tokens for a user.
func (s *TokenService) RevokeAllUserTokens(ctx context.Context, userID string) error {
	return s.storage.Tokens().RevokeAllForUser(ctx, userID)
}

// CleanupExpiredTokens removes expired tokens from storage.
func (s *TokenService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	return s.storage.Tokens().DeleteExpired(ctx)
}

// RunCleanup calls CleanupExpiredTokens every interval until ctx is done.
func (s *TokenService) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.CleanupExpiredTokens(ctx)
			if err != nil {
				zap.L().Warn("refresh token cleanup", zap.Error(err))
				continue
			}
			if n > 0 {
				zap.L().Debug("refresh tokens removed", zap.Int64("count", n))
			}
		}
	}
}
