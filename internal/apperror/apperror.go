// Package apperror defines the executor's error taxonomy.
//
// Every error a caller can observe resolves to one Kind. The Kind is what ends up
// in the "type" field of the structured error body, so the strings below are part
// of the wire contract and must not change.
package apperror

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable error class reported to callers.
type Kind string

const (
	KindInput           Kind = "InputError"
	KindScriptTimeout   Kind = "ScriptTimeoutError"
	KindScriptExecution Kind = "ScriptExecutionError" // reserved: a non-zero exit is reported through exit_code alone
	KindInternal        Kind = "InternalServerError"
)

var (
	ErrInput         = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrMisconfigured = errors.New("misconfigured")
	ErrRateLimited   = errors.New("rate limited")
	ErrInternal      = errors.New("internal error")
)

type AppError struct {
	Err     error  // sentinel, used for status mapping
	Kind    Kind   // reported error type
	Message string // Human-readable error message
	Field   string // Optional: request field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// InvalidInput reports a malformed request. HTTP handlers map this to 400.
func InvalidInput(field, message string) *AppError {
	return &AppError{
		Err:     ErrInput,
		Kind:    KindInput,
		Message: message,
		Field:   field,
	}
}

// Unauthorized reports a failed shared-secret check. It is an InputError kind,
// not an internal one: the caller sent a bad request.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Kind:    KindInput,
		Message: message,
	}
}

// Misconfigured reports a server that cannot safely serve traffic.
func Misconfigured(message string) *AppError {
	return &AppError{
		Err:     ErrMisconfigured,
		Kind:    KindInternal,
		Message: message,
	}
}

// RateLimited reports a caller that exceeded its request budget.
func RateLimited(limit float64) *AppError {
	return &AppError{
		Err:     ErrRateLimited,
		Kind:    KindInput,
		Message: fmt.Sprintf("Too many requests (limit %g/s).", limit),
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:     ErrInternal,
		Kind:    KindInternal,
		Message: message,
	}
}

// KindOf resolves the Kind of any error chain. Errors that did not originate
// from this package are internal faults.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != "" {
		return appErr.Kind
	}
	return KindInternal
}
