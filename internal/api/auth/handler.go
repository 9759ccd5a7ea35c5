package auth

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/ivvboard/internal/api/respond"
	"github.com/good-yellow-bee/ivvboard/internal/metrics"
	"github.com/good-yellow-bee/ivvboard/internal/models"
	"github.com/good-yellow-bee/ivvboard/internal/storage"
)

// Handler handles authentication endpoints.
type Handler struct {
	storage        storage.Storage
	jwtService     *JWTService
	tokenService   *TokenService
	lockoutTracker *LockoutTracker
}

// NewHandler creates a new auth handler.
func NewHandler(store storage.Storage, jwt *JWTService, lockout *LockoutTracker, refreshTTL time.Duration) *Handler {
	return &Handler{
		storage:        store,
		jwtService:     jwt,
		tokenService:   NewTokenService(store, refreshTTL),
		lockoutTracker: lockout,
	}
}

// Tokens returns the refresh token service used by the handler.
func (h *Handler) Tokens() *TokenService {
	return h.tokenService
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// RegisterResponse is returned on successful registration.
type RegisterResponse struct {
	ID             string                `json:"id"`
	Email          string                `json:"email"`
	DisplayName    string                `json:"display_name,omitempty"`
	Role           models.Role           `json:"role"`
	ApprovalStatus models.ApprovalStatus `json:"approval_status"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the request body for self-service registration.
// Role defaults to public; vendor and ets accounts wait for ets approval.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// RefreshRequest is the request body for token refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest is the request body for logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Register creates an account. Public accounts are usable immediately.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	email := NormalizeEmail(req.Email)
	if err := ValidateEmail(email); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, err.Error())
		return
	}
	if err := ValidatePasswordForOrError(email, req.Password); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, err.Error())
		return
	}

	role := models.RolePublic
	if strings.TrimSpace(req.Role) != "" {
		role = models.Role(strings.ToLower(strings.TrimSpace(req.Role)))
		if !role.Valid() {
			respond.Error(w, http.StatusBadRequest, respond.CodeValidation, "role must be public, vendor or ets")
			return
		}
	}

	ctx := r.Context()
	existing, err := h.storage.Users().GetByEmail(ctx, email)
	if err != nil {
		zap.L().Error("register: lookup email", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "internal server error")
		return
	}
	if existing != nil {
		respond.Error(w, http.StatusConflict, respond.CodeConflict, "email already registered")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		zap.L().Error("register: hash password", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "internal server error")
		return
	}

	user := models.NewUser(email, role)
	user.DisplayName = strings.TrimSpace(req.DisplayName)
	user.PasswordHash = hash
	if err := h.storage.Users().Create(ctx, user); err != nil {
		zap.L().Error("register: create user", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "internal server error")
		return
	}

	metrics.RegistrationsTotal.WithLabelValues(string(role)).Inc()
	zap.L().Info("account registered",
		zap.String("user_id", user.ID),
		zap.String("role", string(role)),
		zap.String("approval", string(user.ApprovalStatus)),
	)

	respond.Created(w, &RegisterResponse{
		ID:             user.ID,
		Email:          user.Email,
		DisplayName:    user.DisplayName,
		Role:           user.Role,
		ApprovalStatus: user.ApprovalStatus,
	})
}

// Login handles user login. Pending accounts may log in; the role gate keeps
// them out of protected routes until approved.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		respond.Error(w, http.StatusBadRequest, respond.CodeBadRequest, "email and password required")
		return
	}

	if locked, remaining := h.lockoutTracker.Check(email); locked {
		metrics.AuthAttemptsTotal.WithLabelValues("locked").Inc()
		zap.L().Warn("login blocked: account locked",
			zap.String("email", email),
			zap.Duration("remaining", remaining),
		)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(remaining.Seconds()))))
		respond.Error(w, http.StatusTooManyRequests, respond.CodeAccountLocked, "account temporarily locked due to too many failed attempts")
		return
	}

	ctx := r.Context()
	user, err := h.storage.Users().GetByEmail(ctx, email)
	if err != nil {
		zap.L().Error("login: get user", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "internal server error")
		return
	}
	if user == nil || !CheckPassword(user.PasswordHash, req.Password) {
		h.lockoutTracker.RecordFailure(email)
		metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
		zap.L().Info("login failed", zap.String("email", email))
		respond.Error(w, http.StatusUnauthorized, respond.CodeUnauthorized, "invalid credentials")
		return
	}

	h.lockoutTracker.ClearFailures(email)

	resp, err := h.issue(r, user, "")
	if err != nil {
		zap.L().Error("login: issue tokens", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "internal server error")
		return
	}

	metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	zap.L().Info("login success", zap.String("user_id", user.ID))
	respond.OK(w, resp)
}

// issue creates an access token to go with refreshToken. An empty
// refreshToken starts a new session.
func (h *Handler) issue(r *http.Request, user *models.User, refreshToken string) (*LoginResponse, error) {
	accessToken, err := h.jwtService.GenerateToken(user)
	if err != nil {
		return nil, err
	}

	if refreshToken == "" {
		refreshToken, err = h.tokenService.CreateRefreshToken(r.Context(), user.ID)
		if err != nil {
			return nil, err
		}
	}

	metrics.AuthTokensIssued.WithLabelValues("access").Inc()
	metrics.AuthTokensIssued.WithLabelValues("refresh").Inc()

	return &LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    h.jwtService.TTLSeconds(),
		TokenType:    "Bearer",
	}, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	if req.RefreshToken == "" {
		respond.Error(w, http.StatusBadRequest, respond.CodeBadRequest, "refresh_token required")
		return
	}

	user, next, err := h.tokenService.Exchange(r.Context(), req.RefreshToken)
	if errors.Is(err, ErrInvalidRefreshToken) {
		zap.L().Info("refresh rejected", zap.Error(err))
		respond.Error(w, http.StatusUnauthorized, respond.CodeUnauthorized, "invalid or expired token")
		return
	}
	if err != nil {
		zap.L().Error("refresh: exchange token", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "internal server error")
		return
	}

	resp, err := h.issue(r, user, next)
	if err != nil {
		zap.L().Error("refresh: issue tokens", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "internal server error")
		return
	}

	respond.OK(w, resp)
}

// Logout revokes the supplied refresh token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	if req.RefreshToken == "" {
		respond.Error(w, http.StatusBadRequest, respond.CodeBadRequest, "refresh_token required")
		return
	}

	if err := h.tokenService.RevokeRefreshToken(r.Context(), req.RefreshToken); err != nil {
		// Already revoked tokens are not an error for the client.
		zap.L().Warn("logout: revoke token", zap.Error(err))
	}

	respond.NoContent(w)
}
