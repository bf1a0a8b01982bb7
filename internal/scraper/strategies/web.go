package strategies

import (
	"context"
	"net/url"
	"strings"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
	"github.com/custodia-labs/docdex/internal/scraper"
)

// Web crawls HTTP and HTTPS documentation sites breadth-first. Before a
// fresh scrape it probes for an llms.txt seed list; seeds found there
// enter the queue at depth zero and try a .md sibling first.
type Web struct {
	executor *scraper.Executor
	probe    driven.Fetcher
}

var _ driven.ScraperStrategy = (*Web)(nil)

// NewWeb creates the web strategy. The probe fetcher retrieves llms.txt
// candidates; usually the same HTTP fetcher the executor uses.
func NewWeb(executor *scraper.Executor, probe driven.Fetcher) *Web {
	return &Web{executor: executor, probe: probe}
}

// Name identifies the strategy.
func (w *Web) Name() string { return "web" }

// CanHandle accepts http and https URLs.
func (w *Web) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// Scrape seeds the queue and runs the executor.
func (w *Web) Scrape(ctx context.Context, opts *domain.ScraperOptions, seeds []domain.RefreshSeed, onProgress driven.ProgressFunc) error {
	filter, err := scraper.NewURLFilter(opts.URL, opts)
	if err != nil {
		return err
	}

	var queue []scraper.QueueItem

	if opts.IsRefresh {
		// Refresh: the stored pages are the queue; no llms.txt probe.
		for _, seed := range seeds {
			queue = append(queue, scraper.QueueItem{
				URL:          seed.URL,
				Depth:        seed.Depth,
				PageID:       seed.PageID,
				ETag:         seed.ETag,
				LastModified: seed.LastModified,
				Refresh:      true,
			})
		}
	} else {
		if listed := scraper.ProbeLlmsTxt(ctx, w.probe, opts.URL); listed != nil {
			for _, u := range listed {
				if filter.Allows(u) {
					queue = append(queue, scraper.QueueItem{URL: u, Depth: 0, FromLlmsTxt: true})
				}
			}
		}
		queue = append(queue, scraper.QueueItem{URL: opts.URL, Depth: 0})
	}

	return w.executor.Run(ctx, opts, filter, queue, onProgress)
}
