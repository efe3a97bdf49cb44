package provider

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a provider failure for retry purposes. Exactly two kinds
// exist: transient failures are retried under the backoff policy, fatal ones
// fail the chunk immediately.
type Kind int

const (
	KindTransient Kind = iota
	KindFatal
)

func (k Kind) String() string {
	if k == KindFatal {
		return "fatal"
	}
	return "transient"
}

// Sentinel errors for common provider failure modes.
var (
	// ErrUnknownProvider indicates the requested provider is not registered.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrRateLimited indicates the provider throttled the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates a provider-side (5xx-class) failure.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrTimeout indicates the bounded call deadline was exceeded.
	ErrTimeout = errors.New("request timed out")

	// ErrUnauthorized indicates missing or rejected credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidRequest indicates the request was malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrContentRejected indicates the provider refused the content.
	ErrContentRejected = errors.New("content rejected by provider")
)

// Error wraps provider failures with classification and context.
type Error struct {
	Provider string // Provider id ("gemini", "openai", ...)
	Op       string // Operation that failed ("transform")
	Err      error  // Underlying error
	Kind     Kind   // Transient or Fatal
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified provider error.
func NewError(providerID, op string, err error, kind Kind) *Error {
	return &Error{Provider: providerID, Op: op, Err: err, Kind: kind}
}

// Transient wraps err as a retryable provider error.
func Transient(providerID, op string, err error) *Error {
	return NewError(providerID, op, err, KindTransient)
}

// Fatal wraps err as a non-retryable provider error.
func Fatal(providerID, op string, err error) *Error {
	return NewError(providerID, op, err, KindFatal)
}

// IsTransient reports whether err should be retried. Unclassified errors are
// treated as transient: context deadline overruns map to timeouts, and an
// unknown network-level failure is worth one more attempt, while everything
// known-fatal is classified explicitly at the adapter boundary.
func IsTransient(err error) bool {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Kind == KindTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrContentRejected) {
		return false
	}
	return true
}
