package domain

import "fmt"

// EmbedErrorKind classifies an embedding provider failure.
type EmbedErrorKind string

// Embedding failure kinds.
const (
	// EmbedSizeLimit means the batch or a single input exceeded the
	// provider's input limit. The caller splits and retries.
	EmbedSizeLimit EmbedErrorKind = "size_limit"

	// EmbedAuth means credentials are missing or rejected.
	EmbedAuth EmbedErrorKind = "auth"

	// EmbedUnreachable means the provider could not be reached.
	EmbedUnreachable EmbedErrorKind = "unreachable"

	// EmbedProvider is any other provider-reported error.
	EmbedProvider EmbedErrorKind = "provider"
)

// EmbedError is the classified failure surfaced by embedding clients.
// Retry logic branches on Kind, not on message matching.
type EmbedError struct {
	Kind EmbedErrorKind

	// Code is the provider status or error code, if any.
	Code int

	// Message is the provider's error message.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *EmbedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("embedding: %s (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("embedding: %s (code %d): %v", e.Kind, e.Code, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *EmbedError) Unwrap() error {
	return e.Err
}
