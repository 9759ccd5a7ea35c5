// Package users provides account management endpoints: the caller's own
// profile, ets administration and the approval workflow.
package users

import (
	"strings"
	"unicode/utf8"

	"github.com/good-yellow-bee/ivvboard/internal/api/auth"
	"github.com/good-yellow-bee/ivvboard/internal/models"
)

const maxDisplayName = 100

// ValidationError contains validation error details.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidateEmail validates an email address. The caller normalizes first.
func ValidateEmail(email string) error {
	if err := auth.ValidateEmail(email); err != nil {
		return &ValidationError{Field: "email", Message: err.Error()}
	}
	return nil
}

// ValidateDisplayName allows an empty name.
func ValidateDisplayName(name string) error {
	if utf8.RuneCountInString(strings.TrimSpace(name)) > maxDisplayName {
		return &ValidationError{Field: "display_name", Message: "display_name must be at most 100 characters"}
	}
	return nil
}

// ValidateRole validates a role string.
func ValidateRole(role string) (models.Role, error) {
	r := models.Role(strings.TrimSpace(strings.ToLower(role)))
	if !r.Valid() {
		return "", &ValidationError{Field: "role", Message: "role must be one of: public, vendor, ets"}
	}
	return r, nil
}

// ValidateApproval validates an approval decision.
func ValidateApproval(status string) (models.ApprovalStatus, error) {
	s, ok := models.ParseApprovalStatus(status)
	if !ok {
		return "", &ValidationError{Field: "status", Message: "status must be one of: pending, approved, denied"}
	}
	return s, nil
}
