package driven

import "github.com/custodia-labs/docdex/internal/core/domain"

// EventBus is the process-local notification channel between the pipeline
// manager and its subscribers (dashboard, SSE bridges, tests).
type EventBus interface {
	// Publish delivers the event to all current subscribers without
	// blocking the publisher.
	Publish(event domain.Event)

	// Subscribe registers a listener and returns its channel plus an
	// unsubscribe function. The channel is closed on unsubscribe.
	Subscribe() (<-chan domain.Event, func())
}
