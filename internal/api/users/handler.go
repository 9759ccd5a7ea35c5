package users

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/ivvboard/internal/api/auth"
	"github.com/good-yellow-bee/ivvboard/internal/api/middleware"
	"github.com/good-yellow-bee/ivvboard/internal/api/respond"
	"github.com/good-yellow-bee/ivvboard/internal/models"
	"github.com/good-yellow-bee/ivvboard/internal/storage"
)

// storageError renders a failed storage call. A user removed concurrently is
// a 404; anything else is logged and hidden.
func storageError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "not found")
		return
	}
	zap.L().Error(op, zap.Error(err))
	respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "internal server error")
}

// UserResponse is a user without sensitive fields.
type UserResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	DisplayName    string `json:"display_name,omitempty"`
	Role           string `json:"role"`
	ApprovalStatus string `json:"approval_status"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// Handler handles user management endpoints.
type Handler struct {
	storage storage.Storage
}

// NewHandler creates a new user handler.
func NewHandler(store storage.Storage) *Handler {
	return &Handler{storage: store}
}

// CreateRequest is the request body for creating a user. Accounts created by
// ets staff are approved immediately.
type CreateRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

// UpdateRequest is the request body for updating a user.
type UpdateRequest struct {
	Email       *string `json:"email,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
	Role        string  `json:"role,omitempty"`
}

// ApprovalRequest is the request body for an approval decision.
type ApprovalRequest struct {
	Status string `json:"status"`
}

// ChangePasswordRequest is the request body for changing password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// List returns users, optionally filtered by ?role= and ?approval=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var filter storage.UserFilter

	if v := r.URL.Query().Get("role"); v != "" {
		role, err := ValidateRole(v)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, respond.CodeValidation, err.Error())
			return
		}
		filter.Role = role
	}
	if v := r.URL.Query().Get("approval"); v != "" {
		status, err := ValidateApproval(v)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, respond.CodeValidation, err.Error())
			return
		}
		filter.ApprovalStatus = status
	}

	users, err := h.storage.Users().List(r.Context(), filter)
	if err != nil {
		storageError(w, "list users", err)
		return
	}

	resp := make([]*UserResponse, len(users))
	for i, u := range users {
		resp[i] = userToResponse(u)
	}
	respond.OK(w, resp)
}

// Create creates a new user.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	email := auth.NormalizeEmail(req.Email)
	if err := ValidateEmail(email); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, err.Error())
		return
	}
	if err := ValidateDisplayName(req.DisplayName); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, err.Error())
		return
	}
	if err := auth.ValidatePasswordOrError(req.Password); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, err.Error())
		return
	}
	role, err := ValidateRole(req.Role)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, err.Error())
		return
	}

	ctx := r.Context()
	existing, err := h.storage.Users().GetByEmail(ctx, email)
	if err != nil {
		storageError(w, "create user: check email", err)
		return
	}
	if existing != nil {
		respond.Error(w, http.StatusConflict, respond.CodeConflict, "email already exists")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		storageError(w, "create user: hash password", err)
		return
	}

	user := models.NewUser(email, role)
	user.DisplayName = strings.TrimSpace(req.DisplayName)
	user.PasswordHash = hash
	user.ApprovalStatus = models.ApprovalApproved

	if err := h.storage.Users().Create(ctx, user); err != nil {
		storageError(w, "create user", err)
		return
	}

	zap.L().Info("user created",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.String("by", middleware.GetUserID(ctx)),
	)
	respond.Created(w, userToResponse(user))
}

// loadTarget fetches the {id} user, writing 404 when missing.
func (h *Handler) loadTarget(w http.ResponseWriter, r *http.Request, op string) *models.User {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		respond.Error(w, http.StatusBadRequest, respond.CodeBadRequest, "user id required")
		return nil
	}

	user, err := h.storage.Users().GetByID(r.Context(), userID)
	if err != nil {
		storageError(w, op+": get user", err)
		return nil
	}
	if user == nil {
		respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "not found")
		return nil
	}
	return user
}

// GetByID returns a user by ID.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	user := h.loadTarget(w, r, "get user")
	if user == nil {
		return
	}
	respond.OK(w, userToResponse(user))
}

// Update changes email, display name or role. Staff cannot change their own role.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	user := h.loadTarget(w, r, "update user")
	if user == nil {
		return
	}
	ctx := r.Context()

	if req.Email != nil {
		email := auth.NormalizeEmail(*req.Email)
		if err := ValidateEmail(email); err != nil {
			respond.Error(w, http.StatusBadRequest, respond.CodeValidation, err.Error())
			return
		}
		existing, err := h.storage.Users().GetByEmail(ctx, email)
		if err != nil {
			storageError(w, "update user: check email", err)
			return
		}
		if existing != nil && existing.ID != user.ID {
			respond.Error(w, http.StatusConflict, respond.CodeConflict, "email already exists")
			return
		}
		user.Email = email
	}

	if req.DisplayName != nil {
		if err := ValidateDisplayName(*req.DisplayName); err != nil {
			respond.Error(w, http.StatusBadRequest, respond.CodeValidation, err.Error())
			return
		}
		user.DisplayName = strings.TrimSpace(*req.DisplayName)
	}

	if req.Role != "" {
		role, err := ValidateRole(req.Role)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, respond.CodeValidation, err.Error())
			return
		}
		if user.ID == middleware.GetUserID(ctx) && role != user.Role {
			respond.Error(w, http.StatusBadRequest, respond.CodeBadRequest, "cannot change own role")
			return
		}
		user.Role = role
	}

	user.UpdatedAt = time.Now()
	if err := h.storage.Users().Update(ctx, user); err != nil {
		storageError(w, "update user", err)
		return
	}

	zap.L().Info("user updated", zap.String("user_id", user.ID))
	respond.OK(w, userToResponse(user))
}

// SetApproval records an ets approval decision. Denying an account revokes
// its refresh tokens.
func (h *Handler) SetApproval(w http.ResponseWriter, r *http.Request) {
	var req ApprovalRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	status, err := ValidateApproval(req.Status)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, err.Error())
		return
	}

	user := h.loadTarget(w, r, "set approval")
	if user == nil {
		return
	}
	ctx := r.Context()

	if user.ID == middleware.GetUserID(ctx) {
		respond.Error(w, http.StatusBadRequest, respond.CodeBadRequest, "cannot change own approval")
		return
	}

	user.ApprovalStatus = status
	user.UpdatedAt = time.Now()
	if err := h.storage.Users().Update(ctx, user); err != nil {
		storageError(w, "set approval", err)
		return
	}

	if status == models.ApprovalDenied {
		if err := h.storage.Tokens().RevokeAllForUser(ctx, user.ID); err != nil {
			zap.L().Warn("set approval: revoke tokens", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	zap.L().Info("approval changed",
		zap.String("user_id", user.ID),
		zap.String("status", string(status)),
		zap.String("by", middleware.GetUserID(ctx)),
	)
	respond.OK(w, userToResponse(user))
}

// Delete deletes a user. Projects assigned to a deleted vendor become unassigned.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if chi.URLParam(r, "id") == middleware.GetUserID(ctx) {
		respond.Error(w, http.StatusBadRequest, respond.CodeBadRequest, "cannot delete own account")
		return
	}

	user := h.loadTarget(w, r, "delete user")
	if user == nil {
		return
	}

	if err := h.storage.Users().Delete(ctx, user.ID); err != nil {
		storageError(w, "delete user", err)
		return
	}

	zap.L().Info("user deleted", zap.String("user_id", user.ID))
	respond.NoContent(w)
}

// GetCurrentUser returns the caller's account, including pending ones.
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "not found")
		return
	}
	respond.OK(w, userToResponse(user))
}

// ChangePassword changes the current user's password and signs out other sessions.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	user := middleware.GetUser(r.Context())
	if user == nil {
		respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "not found")
		return
	}

	if req.CurrentPassword == "" {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, "current_password is required")
		return
	}
	if err := auth.ValidatePasswordForOrError(user.Email, req.NewPassword); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, err.Error())
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		respond.Error(w, http.StatusBadRequest, respond.CodeValidation, "current password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		storageError(w, "change password: hash password", err)
		return
	}

	ctx := r.Context()
	user.PasswordHash = hash
	user.UpdatedAt = time.Now()
	if err := h.storage.Users().Update(ctx, user); err != nil {
		storageError(w, "change password", err)
		return
	}

	if err := h.storage.Tokens().RevokeAllForUser(ctx, user.ID); err != nil {
		// The password is already changed; stale refresh tokens expire on their own.
		zap.L().Warn("change password: revoke tokens", zap.String("user_id", user.ID), zap.Error(err))
	}

	zap.L().Info("password changed", zap.String("user_id", user.ID))
	respond.NoContent(w)
}

// userToResponse converts a User to UserResponse.
func userToResponse(u *models.User) *UserResponse {
	return &UserResponse{
		ID:             u.ID,
		Email:          u.Email,
		DisplayName:    u.DisplayName,
		Role:           string(u.Role),
		ApprovalStatus: string(u.ApprovalStatus),
		CreatedAt:      u.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      u.UpdatedAt.Format(time.RFC3339),
	}
}
