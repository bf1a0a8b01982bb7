package domain

import "fmt"

// FetchErrorKind classifies a fetch failure. Retry logic and refresh
// handling branch on the kind, never on message text.
type FetchErrorKind string

// Fetch failure kinds.
const (
	// FetchTransient covers retryable statuses and transport errors that
	// exhausted their retries.
	FetchTransient FetchErrorKind = "transient"

	// FetchPermanent covers non-retryable 4xx and malformed URLs.
	FetchPermanent FetchErrorKind = "permanent"

	// FetchNotFound is a 404/410. During refresh it triggers page removal.
	FetchNotFound FetchErrorKind = "not_found"

	// FetchUnauthorized is a 401/403.
	FetchUnauthorized FetchErrorKind = "unauthorized"

	// FetchTooLarge means the document exceeds document.maxSize.
	// Skipped, never retried.
	FetchTooLarge FetchErrorKind = "too_large"
)

// FetchError is the classified failure surfaced by fetchers.
type FetchError struct {
	Kind FetchErrorKind

	// URL is the request URL.
	URL string

	// Status is the HTTP status code, 0 for transport errors.
	Status int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.URL, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.Status)
}

// Unwrap exposes the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may succeed on retry.
func (e *FetchError) Retryable() bool {
	return e.Kind == FetchTransient
}
