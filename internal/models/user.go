package models

import (
	"strings"
	"time"
)

// Role represents a user's permission level.
type Role string

const (
	RolePublic Role = "public"
	RoleVendor Role = "vendor"
	RoleETS    Role = "ets"
)

// ApprovalStatus tracks whether an account may use its requested role.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDenied   ApprovalStatus = "denied"
)

// User represents an account holder.
type User struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	DisplayName    string         `json:"display_name,omitempty"`
	PasswordHash   string         `json:"-"` // Never expose in JSON
	Role           Role           `json:"role"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewUser creates a new User with initialized timestamps.
// Public accounts are approved immediately; vendor and ets accounts start pending.
func NewUser(email string, role Role) *User {
	now := time.Now()
	status := ApprovalPending
	if !role.RequiresApproval() {
		status = ApprovalApproved
	}
	return &User{
		Email:          email,
		Role:           role,
		ApprovalStatus: status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsETS returns true if user is oversight staff.
func (u *User) IsETS() bool {
	return u.Role == RoleETS
}

// IsVendor returns true if user is a vendor.
func (u *User) IsVendor() bool {
	return u.Role == RoleVendor
}

// IsApproved reports whether the user may act with their role.
func (u *User) IsApproved() bool {
	if !u.Role.RequiresApproval() {
		return true
	}
	return u.ApprovalStatus == ApprovalApproved
}

// RequiresApproval is true for roles that need an ets decision before access.
func (r Role) RequiresApproval() bool {
	return r == RoleVendor || r == RoleETS
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RolePublic, RoleVendor, RoleETS:
		return true
	}
	return false
}

// ParseRole converts a string to Role.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ets":
		return RoleETS
	case "vendor":
		return RoleVendor
	default:
		return RolePublic
	}
}

// ParseApprovalStatus converts a string to ApprovalStatus.
func ParseApprovalStatus(s string) (ApprovalStatus, bool) {
	switch ApprovalStatus(strings.ToLower(strings.TrimSpace(s))) {
	case ApprovalPending:
		return ApprovalPending, true
	case ApprovalApproved:
		return ApprovalApproved, true
	case ApprovalDenied:
		return ApprovalDenied, true
	}
	return "", false
}
