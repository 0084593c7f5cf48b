// Package questrade provides a client for the Questrade REST API and its OAuth token endpoint.
package questrade

import (
	"context"
	"errors"
	"fmt"
	"net"

	apperrors "holdings/internal/errors"
)

// maxBodyInError bounds how much of an upstream body is kept in error strings.
const maxBodyInError = 512

// APIError is a non-2xx response from a data endpoint.
type APIError struct {
	Op     string
	Status int
	Body   []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d, body: %s", e.Op, e.Status, truncate(e.Body))
}

// Unwrap makes errors.Is(err, apperrors.ErrUpstreamAPI) hold.
func (e *APIError) Unwrap() error {
	return apperrors.ErrUpstreamAPI
}

// AuthError is a rejected token refresh.
type AuthError struct {
	Status int
	Body   []byte
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("token refresh rejected: status %d, body: %s", e.Status, truncate(e.Body))
}

// Unwrap makes errors.Is(err, apperrors.ErrUpstreamAuth) hold.
func (e *AuthError) Unwrap() error {
	return apperrors.ErrUpstreamAuth
}

// MalformedResponseError is a successful response missing an expected field.
// Payload holds the raw body for diagnosis; it must not be sent to clients.
type MalformedResponseError struct {
	Op      string
	Field   string
	Payload []byte
	Cause   error
}

func (e *MalformedResponseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: malformed response at %s: %v", e.Op, e.Field, e.Cause)
	}
	return fmt.Sprintf("%s: malformed response, missing %s", e.Op, e.Field)
}

// Unwrap makes errors.Is(err, apperrors.ErrMalformedResponse) hold.
func (e *MalformedResponseError) Unwrap() []error {
	if e.Cause == nil {
		return []error{apperrors.ErrMalformedResponse}
	}
	return []error{apperrors.ErrMalformedResponse, e.Cause}
}

func malformed(op, field string, payload []byte, cause error) *MalformedResponseError {
	return &MalformedResponseError{Op: op, Field: field, Payload: payload, Cause: cause}
}

// transportError classifies an error returned by http.Client.Do or a body read.
func transportError(op string, err error) error {
	if isTimeout(err) {
		return apperrors.Timeout(op, err)
	}
	return apperrors.Wrap(apperrors.ErrUpstreamAPI, op+" request failed", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(b []byte) string {
	if len(b) > maxBodyInError {
		return string(b[:maxBodyInError]) + "..."
	}
	return string(b)
}
