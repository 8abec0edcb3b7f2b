package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/lexiqai/tts-gateway/internal/resilience"
)

// ErrorKind is the category surfaced to callers of Service.Synthesize
type ErrorKind string

const (
	KindInvalidArgument ErrorKind = "invalid-argument"
	KindAuthRequired    ErrorKind = "auth-required"
	KindRateLimited     ErrorKind = "rate-limited"
	KindInternal        ErrorKind = "internal"
)

// ErrNoCredentials is returned when no provider credential could be obtained
var ErrNoCredentials = errors.New("provider credentials unavailable")

// Error is a classified pipeline failure
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ProviderError is a non-2xx response from the synthesis provider
type ProviderError struct {
	StatusCode int        // HTTP status
	Code       codes.Code // Google API status, e.g. RESOURCE_EXHAUSTED
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned HTTP %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Retryable reports whether the failure is transient: rate limiting or a
// server-side failure class.
func (e *ProviderError) Retryable() bool {
	switch e.Code {
	case codes.ResourceExhausted, codes.Unavailable, codes.Internal, codes.DeadlineExceeded, codes.Aborted:
		return true
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied, codes.FailedPrecondition, codes.NotFound:
		return false
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Kind maps the provider failure onto the caller-facing taxonomy
func (e *ProviderError) Kind() ErrorKind {
	switch {
	case e.Code == codes.Unauthenticated || e.Code == codes.PermissionDenied,
		e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return KindAuthRequired
	case e.Code == codes.ResourceExhausted || e.StatusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case e.Code == codes.InvalidArgument || e.Code == codes.FailedPrecondition,
		e.StatusCode == http.StatusBadRequest:
		return KindInvalidArgument
	default:
		return KindInternal
	}
}

// IsRetryable is the retry predicate used by the synthesis client
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrNoCredentials) || errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable()
	}
	var terr *Error
	if errors.As(err, &terr) {
		return false
	}
	return resilience.IsRetryable(err) || resilience.IsRetryableNetworkError(err)
}

// KindOf classifies any error returned by the pipeline
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var terr *Error
	if errors.As(err, &terr) {
		return terr.Kind
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind()
	}
	if errors.Is(err, ErrNoCredentials) {
		return KindAuthRequired
	}
	return KindInternal
}

// classify wraps err in an *Error carrying its kind, leaving *Error values alone
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var terr *Error
	if errors.As(err, &terr) {
		return err
	}
	return &Error{Kind: KindOf(err), Op: op, Err: err}
}
