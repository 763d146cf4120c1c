// Package apperrors defines the failure taxonomy returned by the stock service.
// Every error crossing the service boundary is an AppError so the HTTP layer
// can map it to a status without inspecting internals.
package apperrors

import (
	"errors"
	"net/http"
)

// AppError is a structured application error with a stable code, a
// user-facing message, the HTTP status it maps to and an optional cause.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is matches any AppError carrying the same code, so wrapped copies still
// compare equal to their sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Wrap creates a copy of sentinel that carries internal as its cause.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a copy of sentinel with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// From returns err as an AppError, falling back to ErrInternal.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(ErrInternal, err)
}

// Authentication & authorization errors.
var (
	ErrUnauthorized = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrForbidden    = &AppError{Code: "FORBIDDEN", Message: "Forbidden", StatusCode: http.StatusForbidden}
)

// Stock lifecycle errors.
var (
	ErrInvalidInput      = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrAlreadyOpen       = &AppError{Code: "ALREADY_OPEN", Message: "Open stock already exists for this tyre size. Please update the existing open stock.", StatusCode: http.StatusConflict}
	ErrItemNotFound      = &AppError{Code: "ITEM_NOT_FOUND", Message: "Item not found in stock", StatusCode: http.StatusNotFound}
	ErrInsufficientStock = &AppError{Code: "INSUFFICIENT_STOCK", Message: "Insufficient stock quantity", StatusCode: http.StatusBadRequest}
)

// Storage errors.
var (
	ErrAmbiguousMatch     = &AppError{Code: "AMBIGUOUS_MATCH", Message: "Duplicate stock records found for a unique key", StatusCode: http.StatusInternalServerError}
	ErrStorageUnavailable = &AppError{Code: "STORAGE_UNAVAILABLE", Message: "Storage is temporarily unavailable", StatusCode: http.StatusServiceUnavailable}
	ErrInternal           = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)
