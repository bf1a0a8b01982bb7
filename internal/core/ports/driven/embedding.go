package driven

import "context"

// EmbeddingService generates embedding vectors for text batches.
// Implementations classify failures as *domain.EmbedError so callers can
// branch on the kind (size-limit errors trigger recursive batch splitting).
type EmbeddingService interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the provider's native vector dimension.
	Dimensions() int

	// ModelName returns the provider:model spec for display.
	ModelName() string
}
