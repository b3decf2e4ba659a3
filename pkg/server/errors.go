package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/robpatriot/nommie-server/pkg/ai"
	"github.com/robpatriot/nommie-server/pkg/game"
	"github.com/robpatriot/nommie-server/pkg/server/db"
)

// AppError is the service-level error envelope. The HTTP layer renders it as
// a Problem-Details body {code, detail, status, trace_id}.
type AppError struct {
	Code   string
	Detail string
	Status int
	cause  error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// Well-known error codes.
const (
	CodeValidation     = "VALIDATION"
	CodeOptimisticLock = "OPTIMISTIC_LOCK"
	CodeNotFound       = "NOT_FOUND"
	CodeForbidden      = "FORBIDDEN"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeConflict       = "CONFLICT"
	CodeInternal       = "INTERNAL"
)

// NewAppError builds an AppError.
func NewAppError(code string, status int, format string, args ...any) *AppError {
	return &AppError{Code: code, Status: status, Detail: fmt.Sprintf(format, args...)}
}

// ErrValidationf is a 400 with the generic validation code.
func ErrValidationf(format string, args ...any) *AppError {
	return NewAppError(CodeValidation, http.StatusBadRequest, format, args...)
}

// ErrNotFoundf is a 404.
func ErrNotFoundf(format string, args ...any) *AppError {
	return NewAppError(CodeNotFound, http.StatusNotFound, format, args...)
}

// ErrForbiddenf is a 403.
func ErrForbiddenf(format string, args ...any) *AppError {
	return NewAppError(CodeForbidden, http.StatusForbidden, format, args...)
}

// ErrConflictf is a 409 with the generic conflict code.
func ErrConflictf(format string, args ...any) *AppError {
	return NewAppError(CodeConflict, http.StatusConflict, format, args...)
}

// MapError lifts any error into an AppError: typed domain errors become 4xx,
// the optimistic lock becomes 409 OPTIMISTIC_LOCK, store misses become 404,
// AI failures and everything else become 500.
func MapError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var ve *game.ValidationError
	if errors.As(err, &ve) {
		return &AppError{
			Code:   string(ve.Kind),
			Detail: ve.Detail,
			Status: http.StatusBadRequest,
			cause:  err,
		}
	}
	if errors.Is(err, db.ErrOptimisticLock) {
		return &AppError{
			Code:   CodeOptimisticLock,
			Detail: "game was modified concurrently; re-fetch and retry",
			Status: http.StatusConflict,
			cause:  err,
		}
	}
	if errors.Is(err, db.ErrNotFound) {
		return &AppError{Code: CodeNotFound, Detail: err.Error(), Status: http.StatusNotFound, cause: err}
	}
	var aiErr *ai.Error
	if errors.As(err, &aiErr) {
		// AI errors never surface their detail to clients.
		return &AppError{Code: CodeInternal, Detail: "internal error", Status: http.StatusInternalServerError, cause: err}
	}
	return &AppError{Code: CodeInternal, Detail: "internal error", Status: http.StatusInternalServerError, cause: err}
}
