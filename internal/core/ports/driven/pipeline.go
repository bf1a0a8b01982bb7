package driven

import (
	"context"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

// ProcessOptions carries the per-job knobs the content pipeline needs.
type ProcessOptions struct {
	// Splitter holds the chunk size targets.
	Splitter domain.SplitterConfig

	// RenderMode selects static fetch, browser rendering, or auto.
	RenderMode domain.RenderMode

	// Headers are the job's extra request headers, forwarded to the
	// renderer for subresource requests.
	Headers map[string]string
}

// ContentProcessor transforms one fetched document into ordered chunks
// with hierarchy plus discovered links. The implementation selects a
// middleware chain by content type and runs the two-phase splitter.
type ContentProcessor interface {
	// Process runs the pipeline for the fetched document.
	Process(ctx context.Context, fetched *FetchResult, sourceURL string, opts ProcessOptions) (*domain.ScrapeResult, error)
}
