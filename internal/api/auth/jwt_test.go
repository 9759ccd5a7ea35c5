package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/good-yellow-bee/ivvboard/internal/models"
)

var testJWTSecret = []byte("test-secret-key-32-bytes-long!!")

func newClockedJWT(ttl time.Duration) (*JWTService, *time.Time) {
	now := time.Date(2025, 6, 30, 9, 0, 0, 0, time.UTC)
	svc := NewJWTService(testJWTSecret, ttl)
	svc.now = func() time.Time { return now }
	return svc, &now
}

func TestJWTService_GenerateAndValidate(t *testing.T) {
	svc, _ := newClockedJWT(15 * time.Minute)
	user := &models.User{ID: "user-123", Email: "ets@example.com", Role: models.RoleETS}

	token, err := svc.GenerateToken(user)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.UserID != user.ID || claims.Subject != user.ID {
		t.Errorf("UserID/Subject = %q/%q, want %q", claims.UserID, claims.Subject, user.ID)
	}
	if claims.Email != user.Email || claims.Role != user.Role {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Issuer != "ivvboard" || len(claims.Audience) != 1 || claims.Audience[0] != "ivvboard-api" {
		t.Errorf("issuer/audience = %q/%v", claims.Issuer, claims.Audience)
	}
	if claims.ID == "" {
		t.Error("token should carry an ID")
	}

	other, _ := svc.GenerateToken(user)
	if other == token {
		t.Error("tokens issued in the same second should still differ")
	}
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc, _ := newClockedJWT(15 * time.Minute)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"malformed", "a.b.c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ValidateToken(tt.token); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestJWTService_DifferentSecret(t *testing.T) {
	svc1 := NewJWTService([]byte("secret-one-32-bytes-long!!!!!!!"), time.Minute)
	svc2 := NewJWTService([]byte("secret-two-32-bytes-long!!!!!!!"), time.Minute)

	token, err := svc1.GenerateToken(&models.User{ID: "user-123", Role: models.RolePublic})
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := svc2.ValidateToken(token); err == nil {
		t.Error("expected error validating token with different secret")
	}
}

func TestJWTService_ExpiredToken(t *testing.T) {
	svc, now := newClockedJWT(15 * time.Minute)

	token, err := svc.GenerateToken(&models.User{ID: "user-123", Role: models.RoleVendor})
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	*now = now.Add(14 * time.Minute)
	if _, err := svc.ValidateToken(token); err != nil {
		t.Fatalf("token should still be valid: %v", err)
	}

	*now = now.Add(2 * time.Minute)
	_, err = svc.ValidateToken(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestJWTService_NotYetValid(t *testing.T) {
	svc, now := newClockedJWT(15 * time.Minute)
	token, _ := svc.GenerateToken(&models.User{ID: "user-123"})

	*now = now.Add(-time.Minute)
	if _, err := svc.ValidateToken(token); err == nil {
		t.Error("expected error for token used before nbf")
	}
}

func TestJWTService_TTLSeconds(t *testing.T) {
	svc := NewJWTService(testJWTSecret, 15*time.Minute)
	if got := svc.TTLSeconds(); got != 900 {
		t.Errorf("TTLSeconds() = %d, want 900", got)
	}
}

func TestJWTService_RejectsForgedClaims(t *testing.T) {
	svc, now := newClockedJWT(15 * time.Minute)
	valid := jwt.RegisteredClaims{
		Issuer:    "ivvboard",
		Audience:  jwt.ClaimStrings{"ivvboard-api"},
		Subject:   "user-123",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}

	tests := []struct {
		name   string
		method jwt.SigningMethod
		mutate func(*Claims)
	}{
		{"foreign issuer", jwt.SigningMethodHS256, func(c *Claims) { c.Issuer = "someone-else" }},
		{"foreign audience", jwt.SigningMethodHS256, func(c *Claims) { c.Audience = jwt.ClaimStrings{"other"} }},
		{"no expiry", jwt.SigningMethodHS256, func(c *Claims) { c.ExpiresAt = nil }},
		{"subject mismatch", jwt.SigningMethodHS256, func(c *Claims) { c.Subject = "user-999" }},
		{"no user", jwt.SigningMethodHS256, func(c *Claims) { c.UserID = "" }},
		{"HS512", jwt.SigningMethodHS512, func(*Claims) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := &Claims{RegisteredClaims: valid, UserID: "user-123"}
			tt.mutate(claims)
			token, err := jwt.NewWithClaims(tt.method, claims).SignedString(testJWTSecret)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			if _, err := svc.ValidateToken(token); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
