// Package errors provides the error taxonomy shared by the holdings backend.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Every failure leaving the core wraps exactly one of these.
var (
	// ErrMissingCredential indicates a credential field is absent from the request.
	ErrMissingCredential = errors.New("missing credential")

	// ErrUpstreamAuth indicates the token endpoint rejected a refresh.
	ErrUpstreamAuth = errors.New("upstream authentication failed")

	// ErrUpstreamTimeout indicates an upstream call did not finish in time.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrUpstreamAPI indicates a data call returned a non-2xx status.
	ErrUpstreamAPI = errors.New("upstream api error")

	// ErrMalformedResponse indicates a successful response lacked an expected field.
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrValidation indicates invalid request parameters.
	ErrValidation = errors.New("validation error")
)

// AppError is a structured application error.
type AppError struct {
	// Type is the error type (sentinel error).
	Type error
	// Message is a diagnostic message. It is logged, never sent to clients.
	Message string
	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns both the sentinel type and the cause so errors.Is/As can see either.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Type}
	}
	return []error{e.Type, e.Cause}
}

// New creates a new AppError.
func New(errType error, message string) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(errType error, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// MissingCredential creates an error naming the absent credential field.
func MissingCredential(field string) *AppError {
	return &AppError{
		Type:    ErrMissingCredential,
		Message: fmt.Sprintf("credential field %q is missing", field),
	}
}

// Validation creates a validation error.
func Validation(message string) *AppError {
	return &AppError{
		Type:    ErrValidation,
		Message: message,
	}
}

// Timeout wraps a transport error as an upstream timeout.
func Timeout(op string, cause error) *AppError {
	return &AppError{
		Type:    ErrUpstreamTimeout,
		Message: op + " timed out",
		Cause:   cause,
	}
}

// IsMissingCredential checks if an error is a missing credential error.
func IsMissingCredential(err error) bool {
	return errors.Is(err, ErrMissingCredential)
}

// IsUpstreamAuth checks if an error is a rejected refresh.
func IsUpstreamAuth(err error) bool {
	return errors.Is(err, ErrUpstreamAuth)
}

// IsTimeout checks if an error is an upstream timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout)
}

// IsMalformed checks if an error is a malformed response error.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}

// Kind returns a short stable label for an error, used in logs, metrics and history.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, ErrUpstreamAuth):
		return "upstream_auth"
	case errors.Is(err, ErrUpstreamTimeout):
		return "upstream_timeout"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrUpstreamAPI):
		return "upstream_api"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}

// HTTPStatus returns the appropriate HTTP status code for an error.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUpstreamAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-facing message for an error.
// Upstream bodies and causes are never included.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "Unauthorized"
	case errors.Is(err, ErrUpstreamAuth):
		return "Failed authorize"
	case errors.Is(err, ErrValidation):
		var appErr *AppError
		if errors.As(err, &appErr) {
			return appErr.Message
		}
		return "Bad request"
	case errors.Is(err, ErrUpstreamTimeout):
		return "Try again later."
	default:
		return "Unexpected error occured."
	}
}
