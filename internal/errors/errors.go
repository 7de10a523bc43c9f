// Package errors defines the closed error taxonomy shared by every Aegix
// component and the HTTP surface that exposes them. It mirrors the
// service-layer's infrastructure/errors package: a small set of categories,
// each carrying an HTTP status and a machine-readable short code, with
// constructor functions so call sites never build a *CoreError by hand.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies which of the seven closed error categories an error
// belongs to.
type Code string

const (
	InputInvalid           Code = "INPUT_INVALID"
	AuthFailed             Code = "AUTH_FAILED"
	HierarchyViolation     Code = "HIERARCHY_VIOLATION"
	InsufficientFunds      Code = "INSUFFICIENT_FUNDS"
	UnsupportedEnvironment Code = "UNSUPPORTED_ENVIRONMENT"
	ChainError             Code = "CHAIN_ERROR"
	Unrecoverable          Code = "UNRECOVERABLE"
)

var statusByCode = map[Code]int{
	InputInvalid:           http.StatusBadRequest,
	AuthFailed:             http.StatusUnauthorized,
	HierarchyViolation:     http.StatusForbidden,
	InsufficientFunds:      http.StatusBadRequest,
	UnsupportedEnvironment: http.StatusServiceUnavailable,
	ChainError:             http.StatusBadGateway,
	Unrecoverable:          http.StatusInternalServerError,
}

// CoreError is the concrete error type produced by every Aegix component.
type CoreError struct {
	Code      Code
	ShortCode string
	Message   string
	Details   map[string]any
	Cause     error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// HTTPStatus returns the status code this error should be reported as.
func (e *CoreError) HTTPStatus() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func newErr(code Code, short, msg string, cause error, details map[string]any) *CoreError {
	return &CoreError{Code: code, ShortCode: short, Message: msg, Details: details, Cause: cause}
}

// Invalid reports malformed or semantically invalid caller input.
func Invalid(format string, args ...any) *CoreError {
	return newErr(InputInvalid, "INVALID_INPUT", fmt.Sprintf(format, args...), nil, nil)
}

// Unauthorized reports a failed signature, API key, or challenge check.
func Unauthorized(format string, args ...any) *CoreError {
	return newErr(AuthFailed, "UNAUTHORIZED", fmt.Sprintf(format, args...), nil, nil)
}

// Forbidden reports a pool-hierarchy or spending-limit violation.
func Forbidden(shortCode, format string, args ...any) *CoreError {
	return newErr(HierarchyViolation, shortCode, fmt.Sprintf(format, args...), nil, nil)
}

// ImmutableRoot is the specific Forbidden case of mutating a Legacy/Main
// pool's fixed attributes.
func ImmutableRoot(format string, args ...any) *CoreError {
	return Forbidden("IMMUTABLE_ROOT", format, args...)
}

// InsufficientBalance reports a pool or recovery-pool balance shortfall.
func InsufficientBalance(format string, args ...any) *CoreError {
	return newErr(InsufficientFunds, "INSUFFICIENT_FUNDS", fmt.Sprintf(format, args...), nil, nil)
}

// Unsupported reports an environment or capability the compression
// provider does not currently support.
func Unsupported(format string, args ...any) *CoreError {
	return newErr(UnsupportedEnvironment, "UNSUPPORTED_ENVIRONMENT", fmt.Sprintf(format, args...), nil, nil)
}

// Chain wraps a failure from an external chain, compression, or
// facilitator RPC call.
func Chain(cause error, format string, args ...any) *CoreError {
	return newErr(ChainError, "CHAIN_ERROR", fmt.Sprintf(format, args...), cause, nil)
}

// Internal wraps a bug or otherwise-unrecoverable condition.
func Internal(cause error, format string, args ...any) *CoreError {
	return newErr(Unrecoverable, "INTERNAL", fmt.Sprintf(format, args...), cause, nil)
}

// As reports whether err is, or wraps, a *CoreError.
func As(err error) (*CoreError, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// CodeOf returns the Code of err, or Unrecoverable if err is not a
// *CoreError.
func CodeOf(err error) Code {
	if ce, ok := As(err); ok {
		return ce.Code
	}
	return Unrecoverable
}
