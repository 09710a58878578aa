package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Pensum error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrUnauthenticated    ErrorCode = "UNAUTHENTICATED"     // 401
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrConflict           ErrorCode = "CONFLICT"            // 409
	ErrInvariantViolation ErrorCode = "INVARIANT_VIOLATION" // 500
	ErrInternal           ErrorCode = "INTERNAL"            // 500
	ErrNotImplemented     ErrorCode = "NOT_IMPLEMENTED"     // 501
	ErrStore              ErrorCode = "STORE"               // 502
)

// PensumError represents a structured error with code, status, and details.
type PensumError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// cause is the wrapped error for store and internal failures
	cause error
}

// Error implements the error interface.
func (e *PensumError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *PensumError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *PensumError {
	return &PensumError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewUnauthenticated creates a 401 error for operations attempted without a user.
func NewUnauthenticated() *PensumError {
	return &PensumError{
		Code:    ErrUnauthenticated,
		Status:  401,
		Message: "user not found",
	}
}

// NewNotFound creates a 404 error. kind names what was looked up ("topic", "card").
func NewNotFound(kind, identifier string) *PensumError {
	return &PensumError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewConflict creates a 409 error for imports that collide with existing data.
func NewConflict(kind, identifier string) *PensumError {
	return &PensumError{
		Code:    ErrConflict,
		Status:  409,
		Message: fmt.Sprintf("%s already exists: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewInvariantViolation creates a 500 error for states that correct operation never reaches.
func NewInvariantViolation(msg string, details map[string]any) *PensumError {
	return &PensumError{
		Code:    ErrInvariantViolation,
		Status:  500,
		Message: msg,
		Details: details,
	}
}

// NewNotImplemented creates a 501 error for operations that are deliberately unsupported.
func NewNotImplemented(msg string) *PensumError {
	return &PensumError{
		Code:    ErrNotImplemented,
		Status:  501,
		Message: msg,
	}
}

// NewStore wraps a data store failure. The cause stays reachable via errors.Unwrap.
func NewStore(op string, err error) *PensumError {
	msg := op
	if err != nil {
		msg = fmt.Sprintf("%s: %v", op, err)
	}
	return &PensumError{
		Code:    ErrStore,
		Status:  502,
		Message: msg,
		Details: map[string]any{"op": op},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *PensumError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &PensumError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if err is, or wraps, a PensumError with the given code.
func Is(err error, code ErrorCode) bool {
	var pErr *PensumError
	if stderrors.As(err, &pErr) {
		return pErr.Code == code
	}
	return false
}

// As extracts the PensumError from err's chain.
func As(err error) (*PensumError, bool) {
	var pErr *PensumError
	ok := stderrors.As(err, &pErr)
	return pErr, ok
}
