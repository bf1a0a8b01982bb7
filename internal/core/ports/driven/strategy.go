package driven

import (
	"context"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

// ProgressUpdate is emitted once per completed queue item. For a given
// job, updates arrive in non-decreasing PagesDone order.
type ProgressUpdate struct {
	// PagesDone and PagesMax are the job-level counters.
	PagesDone int
	PagesMax  int

	// URL is the processed page (after redirects).
	URL string

	// Depth is the BFS depth of the item.
	Depth int

	// Result carries the processed page for persistence. Nil for
	// not-modified and deleted pages.
	Result *domain.ScrapeResult

	// PageID identifies the stored page for refresh operations.
	PageID int64

	// NotModified marks a 304 on a refresh item: only validators change.
	NotModified bool

	// Deleted marks a refresh item whose source returned 404: the page
	// and its documents are to be removed.
	Deleted bool

	// ETag and LastModified are the fresh validators for NotModified.
	ETag         string
	LastModified string

	// Err is the per-page error when processing failed.
	Err error
}

// ProgressFunc consumes progress updates. Returning an error aborts the
// job with that error.
type ProgressFunc func(ctx context.Context, update ProgressUpdate) error

// ScraperStrategy discovers and processes URLs for one source family.
// Strategies are registered in order; the first whose CanHandle accepts
// the input wins. A strategy owns no threading; it drives the shared
// BFS executor.
type ScraperStrategy interface {
	// Name identifies the strategy in logs and snapshots.
	Name() string

	// CanHandle reports whether this strategy processes the URL.
	CanHandle(rawURL string) bool

	// Scrape runs the crawl, emitting one update per completed page.
	// Seeds pre-populate the queue for refresh jobs and are nil
	// otherwise.
	Scrape(ctx context.Context, opts *domain.ScraperOptions, seeds []domain.RefreshSeed, onProgress ProgressFunc) error
}
