// Package respond writes the API's JSON envelope: {"data": ...} on success
// and {"error": {"code", "message"}} on failure.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Error codes.
const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeValidation       = "VALIDATION_FAILED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeForbidden        = "FORBIDDEN"
	CodePendingApproval  = "PENDING_APPROVAL"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeConflict         = "CONFLICT"
	CodeTooLarge         = "PAYLOAD_TOO_LARGE"
	CodeRateLimited      = "RATE_LIMITED"
	CodeAccountLocked    = "ACCOUNT_LOCKED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeNotImplemented   = "NOT_IMPLEMENTED"
)

// MaxBodyBytes bounds decoded request bodies.
const MaxBodyBytes = 1 << 20

// Problem is the body of an error response.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type dataEnvelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error Problem `json:"error"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("json encode", zap.Error(err))
	}
}

func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, dataEnvelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, dataEnvelope{Data: data})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes an error envelope.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, errorEnvelope{Error: Problem{Code: code, Message: message}})
}

// Internal logs err under op and writes a generic 500.
func Internal(w http.ResponseWriter, op string, err error) {
	zap.L().Error(op, zap.Error(err))
	Error(w, http.StatusInternalServerError, CodeInternal, "internal server error")
}

// Decode reads a JSON body of at most MaxBodyBytes into dst. On failure it
// writes the error response and returns false.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, CodeTooLarge, "request body too large")
		return false
	}
	Error(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
	return false
}
