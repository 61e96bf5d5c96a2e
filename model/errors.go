package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTransient marks an error as a transient provider condition (quota
// exhaustion, overloaded or failing backend) that is worth retrying.
var ErrTransient = errors.New("transient provider error")

// ProviderError is the normalized error returned by provider adapters. It
// keeps the HTTP status so retry policies can classify failures without
// knowing the vendor SDK.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s api error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s api error: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying SDK error.
func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether the status code denotes a retryable condition.
func (e *ProviderError) Transient() bool { return IsTransientStatus(e.StatusCode) }

// NewProviderError wraps err for the given provider and status code.
func NewProviderError(provider string, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, StatusCode: status, Err: err}
}

// IsTransientStatus reports whether an HTTP status code indicates quota
// exhaustion or a transient server failure.
func IsTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsTransient is the default retry predicate. It accepts errors wrapping
// ErrTransient and ProviderErrors with a transient status code.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Transient()
	}
	return false
}
