// Package apierr classifies errors returned by language-model providers.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth means the provider rejected the credential. Never retried.
	ErrAuth = errors.New("provider rejected credential")
	// ErrUnsupported means the provider variant does not offer the operation.
	ErrUnsupported = errors.New("operation not supported by provider")
	// ErrRateLimited means the provider throttled the request.
	ErrRateLimited = errors.New("provider rate limit")
)

// Error is a non-2xx response from a provider API.
type Error struct {
	Provider string
	Status   int
	Body     string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.Status, e.Body)
}

// Unwrap maps the HTTP status onto the sentinel errors so callers can use errors.Is.
func (e *Error) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return nil
	}
}

// New builds an Error for a provider response.
func New(provider string, status int, body string) *Error {
	return &Error{Provider: provider, Status: status, Body: body}
}

// Unsupported wraps ErrUnsupported with the provider and operation names.
func Unsupported(provider, op string) error {
	return fmt.Errorf("%s: %s: %w", provider, op, ErrUnsupported)
}

// Retryable reports whether a provider call may succeed if repeated.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrAuth) && !errors.Is(err, ErrUnsupported)
}
