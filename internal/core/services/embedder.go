package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
	"github.com/custodia-labs/docdex/internal/logger"
)

// EmbeddingCoordinator batches chunk texts through a provider, pads
// vectors to the database dimension and recovers from provider size
// limits by splitting batches in half recursively. A nil provider
// disables embeddings entirely; the store stays usable on FTS alone.
type EmbeddingCoordinator struct {
	provider driven.EmbeddingService
	cfg      domain.EmbeddingConfig
}

// NewEmbeddingCoordinator validates the provider against the database
// dimension. Providers whose native dimension exceeds it are rejected.
func NewEmbeddingCoordinator(provider driven.EmbeddingService, cfg domain.EmbeddingConfig) (*EmbeddingCoordinator, error) {
	if cfg.VectorDimension <= 0 {
		cfg.VectorDimension = 1536
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchChars <= 0 {
		cfg.BatchChars = 50_000
	}
	if provider != nil && provider.Dimensions() > cfg.VectorDimension {
		return nil, fmt.Errorf("%w: model %s produces %d dimensions, database holds %d",
			domain.ErrDimensionMismatch, provider.ModelName(), provider.Dimensions(), cfg.VectorDimension)
	}
	return &EmbeddingCoordinator{provider: provider, cfg: cfg}, nil
}

// Enabled reports whether vector generation is configured.
func (c *EmbeddingCoordinator) Enabled() bool {
	return c != nil && c.provider != nil
}

// EmbedChunks populates the Embedding field of every chunk in the scrape
// result, prepending the metadata header before embedding. The chunk
// Content itself is left untouched.
func (c *EmbeddingCoordinator) EmbedChunks(ctx context.Context, result *domain.ScrapeResult) error {
	if !c.Enabled() || len(result.Chunks) == 0 {
		return nil
	}

	texts := make([]string, len(result.Chunks))
	for i, chunk := range result.Chunks {
		texts[i] = domain.EmbeddingHeader(result.Title, result.URL, chunk.Section.Path) + chunk.Content
	}

	vectors, err := c.embedBatched(ctx, texts)
	if err != nil {
		return err
	}

	for i := range result.Chunks {
		result.Chunks[i].Embedding = padVector(vectors[i], c.cfg.VectorDimension)
	}
	return nil
}

// EmbedQuery embeds a single query string, padded to the database
// dimension.
func (c *EmbeddingCoordinator) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if !c.Enabled() {
		return nil, domain.ErrEmbeddingUnavailable
	}
	vectors, err := c.embedBatched(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return padVector(vectors[0], c.cfg.VectorDimension), nil
}

// embedBatched splits texts into batches bounded by count and total
// characters, delegating each to embedWithSplit.
func (c *EmbeddingCoordinator) embedBatched(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	var batch []string
	batchChars := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		out, err := c.embedWithSplit(ctx, batch)
		if err != nil {
			return err
		}
		vectors = append(vectors, out...)
		batch = nil
		batchChars = 0
		return nil
	}

	for _, text := range texts {
		if len(batch) >= c.cfg.BatchSize || (len(batch) > 0 && batchChars+len(text) > c.cfg.BatchChars) {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		batch = append(batch, text)
		batchChars += len(text)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// embedWithSplit embeds one batch, splitting it in half recursively when
// the provider reports its input too large. A single oversized text is
// cut in half and the first half retried: a truncated vector beats none.
func (c *EmbeddingCoordinator) embedWithSplit(ctx context.Context, batch []string) ([][]float32, error) {
	out, err := c.provider.Embed(ctx, batch)
	if err == nil {
		if len(out) != len(batch) {
			return nil, fmt.Errorf("embedding: provider returned %d vectors for %d inputs", len(out), len(batch))
		}
		return out, nil
	}

	var embedErr *domain.EmbedError
	if !errors.As(err, &embedErr) || embedErr.Kind != domain.EmbedSizeLimit {
		return nil, err
	}

	if len(batch) > 1 {
		mid := len(batch) / 2
		logger.Debug("embedding batch of %d too large, splitting", len(batch))
		left, err := c.embedWithSplit(ctx, batch[:mid])
		if err != nil {
			return nil, err
		}
		right, err := c.embedWithSplit(ctx, batch[mid:])
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	}

	text := batch[0]
	if len(text) < 2 {
		return nil, err
	}
	logger.Debug("embedding text of %d chars too large, halving", len(text))
	return c.embedWithSplit(ctx, []string{text[:len(text)/2]})
}

// padVector zero-pads a vector to the database dimension.
func padVector(vec []float32, dim int) []float32 {
	if len(vec) >= dim {
		return vec[:dim]
	}
	padded := make([]float32, dim)
	copy(padded, vec)
	return padded
}
