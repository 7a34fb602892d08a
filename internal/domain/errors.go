package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when a user or referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrPermissionDenied is returned when a feature flag is off or the caller may not act on the target user.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrDataFetch wraps record store failures during aggregation.
	ErrDataFetch = errors.New("data fetch failed")
	// ErrUpstream wraps failures of the external analysis backend.
	ErrUpstream = errors.New("analysis backend failed")
)

// Kind is the stable error tag surfaced to clients.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindValidation       Kind = "validation_error"
	KindPermissionDenied Kind = "permission_denied"
	KindDataFetch        Kind = "data_fetch_error"
	KindUpstream         Kind = "upstream_error"
	KindInternal         Kind = "internal_error"
)

// KindOf classifies err into one of the stable error kinds.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDataFetch):
		return KindDataFetch
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	default:
		return KindInternal
	}
}

// DataFetchError identifies the category whose fetch failed.
type DataFetchError struct {
	Category Category
	Err      error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("fetch %s records: %v", e.Category, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying store error.
func (e *DataFetchError) Unwrap() []error {
	return []error{ErrDataFetch, e.Err}
}

// UpstreamError reports a failed analysis backend call. Message is safe to show to clients
// and to log; raw backend payloads never end up here.
type UpstreamError struct {
	Status  int
	Message string
	Timeout bool
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("analysis backend: %s (status %d)", e.Message, e.Status)
	}
	return "analysis backend: " + e.Message
}

// Unwrap ties the error to ErrUpstream.
func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

// NewUpstreamStatusError builds an UpstreamError for a non-success HTTP status.
func NewUpstreamStatusError(status int) *UpstreamError {
	text := http.StatusText(status)
	if text == "" {
		text = "unexpected status"
	}
	return &UpstreamError{Status: status, Message: text}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
