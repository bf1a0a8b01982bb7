package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
	"github.com/custodia-labs/docdex/internal/fetcher"
	"github.com/custodia-labs/docdex/internal/logger"
)

// QueueItem is one unit of BFS work.
type QueueItem struct {
	// URL is the target location.
	URL string

	// Depth is the BFS depth; links found here enqueue at Depth+1.
	Depth int

	// FromLlmsTxt marks seeds taken from an llms.txt list; these probe
	// a .md sibling before the primary fetch.
	FromLlmsTxt bool

	// PageID, ETag and LastModified are set for refresh items seeded
	// from the store.
	PageID       int64
	ETag         string
	LastModified string

	// Refresh marks items fetched conditionally.
	Refresh bool
}

// ExecutorConfig bounds a crawl independent of per-job options.
type ExecutorConfig struct {
	// PageTimeout bounds one fetch-and-process cycle.
	PageTimeout time.Duration

	// MaxDocumentSize bounds one document's byte size.
	MaxDocumentSize int

	// Splitter holds the chunk size targets handed to the pipeline.
	Splitter domain.SplitterConfig
}

// Executor is the breadth-first traversal loop shared by all strategies.
// The executor goroutine owns the queue and the visited set; fetches run
// on a worker pool capped at the job's MaxConcurrency.
type Executor struct {
	fetchers  []driven.Fetcher
	processor driven.ContentProcessor
	cfg       ExecutorConfig
}

// NewExecutor creates the executor over an ordered fetcher list.
func NewExecutor(fetchers []driven.Fetcher, processor driven.ContentProcessor, cfg ExecutorConfig) *Executor {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}
	if cfg.Splitter == (domain.SplitterConfig{}) {
		cfg.Splitter = domain.DefaultConfig().Splitter
	}
	return &Executor{fetchers: fetchers, processor: processor, cfg: cfg}
}

// pageOutcome is one completed page inside a worker result. A worker may
// produce several (archive expansion).
type pageOutcome struct {
	url          string
	result       *domain.ScrapeResult
	notModified  bool
	deleted      bool
	etag         string
	lastModified string
	err          error
}

// workerResult is what a worker reports back to the executor goroutine.
type workerResult struct {
	item     QueueItem
	outcomes []pageOutcome
}

// Run drains the queue. Items dequeue in insertion order; completion
// order is unspecified; progress is reported per completed page from the
// executor goroutine, so PagesDone is non-decreasing.
//
//nolint:gocognit // The BFS loop coordinates dispatch, results and back-pressure in one place.
func (e *Executor) Run(ctx context.Context, opts *domain.ScraperOptions, filter *URLFilter, seeds []QueueItem, onProgress driven.ProgressFunc) error {
	// Workers block handing results back; cancelling this derived
	// context releases them on every exit path.
	workCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = 1000
	}
	maxDepth := opts.MaxDepth
	if maxDepth < 0 {
		maxDepth = 0
	}
	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 3
	}

	var (
		queue    []QueueItem
		visited  = make(map[string]bool)
		results  = make(chan workerResult)
		pool     errgroup.Group
		inFlight = 0
		done     = 0
		runErr   error
	)
	pool.SetLimit(maxConcurrency)

	enqueue := func(item QueueItem) {
		key := CanonicalURL(item.URL)
		if visited[key] {
			return
		}
		visited[key] = true
		queue = append(queue, item)
	}
	for _, s := range seeds {
		enqueue(s)
	}

	dispatch := func() {
		for inFlight < maxConcurrency && len(queue) > 0 && done+inFlight < maxPages && ctx.Err() == nil {
			item := queue[0]
			queue = queue[1:]

			if item.Depth > maxDepth {
				continue
			}
			// Seeds were filtered by the strategy; discovered links are
			// filtered on enqueue as well, so this is the last gate.
			if !item.Refresh && !filter.Allows(item.URL) {
				continue
			}

			inFlight++
			capturedItem := item
			pool.Go(func() error {
				out := e.processItem(workCtx, capturedItem, opts)
				select {
				case results <- workerResult{item: capturedItem, outcomes: out}:
				case <-workCtx.Done():
				}
				return nil
			})
		}
	}

	dispatch()
	for inFlight > 0 {
		var res workerResult
		select {
		case res = <-results:
		case <-ctx.Done():
			// Stop dequeuing; in-flight fetches abort via the context.
			cancelWorkers()
			_ = pool.Wait()
			drain(results)
			return ctx.Err()
		}
		inFlight--

		for _, out := range res.outcomes {
			if done >= maxPages {
				break
			}
			done++

			// Redirects may land outside the crawl scope; re-evaluate
			// against the final URL.
			if out.result != nil && !res.item.Refresh && out.result.URL != out.url && !filter.InScope(out.result.URL) {
				out.result = nil
				out.err = domain.ErrScopeViolation
			}

			update := driven.ProgressUpdate{
				PagesDone:    done,
				PagesMax:     maxPages,
				URL:          out.url,
				Depth:        res.item.Depth,
				Result:       out.result,
				PageID:       res.item.PageID,
				NotModified:  out.notModified,
				Deleted:      out.deleted,
				ETag:         out.etag,
				LastModified: out.lastModified,
				Err:          out.err,
			}

			if out.err != nil && !opts.IgnoreErrors {
				runErr = fmt.Errorf("page %s: %w", out.url, out.err)
			}
			if err := onProgress(ctx, update); err != nil {
				runErr = err
			}
			if runErr != nil {
				break
			}

			// Enqueue discovered links one depth down.
			if out.result != nil && res.item.Depth < maxDepth {
				for _, link := range out.result.Links {
					if filter.Allows(link) {
						enqueue(QueueItem{URL: link, Depth: res.item.Depth + 1})
					}
				}
			}
		}

		if runErr != nil {
			cancelWorkers()
			_ = pool.Wait()
			drain(results)
			return runErr
		}
		dispatch()
	}

	return ctx.Err()
}

// drain empties the results channel after the pool has stopped.
func drain(results chan workerResult) {
	for {
		select {
		case <-results:
		default:
			return
		}
	}
}

// processItem fetches and processes one queue item on a worker.
func (e *Executor) processItem(ctx context.Context, item QueueItem, opts *domain.ScraperOptions) []pageOutcome {
	fetchOpts := driven.FetchOptions{
		Headers: opts.Headers,
		Timeout: e.cfg.PageTimeout,
		MaxSize: e.cfg.MaxDocumentSize,
	}
	if item.Refresh {
		fetchOpts.IfNoneMatch = item.ETag
		fetchOpts.IfModifiedSince = item.LastModified
	}

	f := e.fetcherFor(item.URL)
	if f == nil {
		return []pageOutcome{{url: item.URL, err: fmt.Errorf("%w: no fetcher for %s", domain.ErrUnsupportedType, item.URL)}}
	}

	fetched, err := e.fetchWithSibling(ctx, f, item, fetchOpts)
	if err != nil {
		var fe *domain.FetchError
		if item.Refresh && errors.As(err, &fe) && fe.Kind == domain.FetchNotFound {
			// A vanished page is removed, not reported as an error.
			return []pageOutcome{{url: item.URL, deleted: true}}
		}
		return []pageOutcome{{url: item.URL, err: err}}
	}

	if fetched.NotModified {
		return []pageOutcome{{
			url:          item.URL,
			notModified:  true,
			etag:         item.ETag,
			lastModified: item.LastModified,
		}}
	}

	if fetcher.IsArchive(fetched.ContentType) {
		return e.processArchive(ctx, item, fetched, opts)
	}

	result, err := e.processor.Process(ctx, fetched, item.URL, driven.ProcessOptions{
		Splitter:   e.cfg.Splitter,
		RenderMode: opts.RenderMode,
		Headers:    opts.Headers,
	})
	if err != nil {
		return []pageOutcome{{url: item.URL, err: err}}
	}
	return []pageOutcome{{url: result.URL, result: result}}
}

// fetchWithSibling tries the .md sibling first for llms.txt seeds, using
// it only on a 200 with a text-like content type.
func (e *Executor) fetchWithSibling(ctx context.Context, f driven.Fetcher, item QueueItem, fetchOpts driven.FetchOptions) (*driven.FetchResult, error) {
	if item.FromLlmsTxt {
		if sibling := MarkdownSibling(item.URL); sibling != "" {
			res, err := f.Fetch(ctx, sibling, fetchOpts)
			if err == nil && res.Status == 200 && TextLike(res.ContentType) {
				logger.Debug("using markdown sibling %s", sibling)
				// The page keeps the original identity.
				res.FinalURL = item.URL
				return res, nil
			}
		}
	}
	return f.Fetch(ctx, item.URL, fetchOpts)
}

// processArchive expands an archive and processes every inner entry.
func (e *Executor) processArchive(ctx context.Context, item QueueItem, fetched *driven.FetchResult, opts *domain.ScraperOptions) []pageOutcome {
	entries, err := fetcher.ExpandArchive(item.URL, fetched.ContentType, fetched.Content, e.cfg.MaxDocumentSize)
	if err != nil {
		return []pageOutcome{{url: item.URL, err: err}}
	}

	outcomes := make([]pageOutcome, 0, len(entries))
	for _, entry := range entries {
		result, err := e.processor.Process(ctx, &driven.FetchResult{
			Content:     entry.Content,
			ContentType: entry.ContentType,
			FinalURL:    entry.URL,
			Status:      200,
		}, entry.URL, driven.ProcessOptions{
			Splitter: e.cfg.Splitter,
			Headers:  opts.Headers,
		})
		if err != nil {
			outcomes = append(outcomes, pageOutcome{url: entry.URL, err: err})
			continue
		}
		outcomes = append(outcomes, pageOutcome{url: entry.URL, result: result})
	}
	return outcomes
}

// fetcherFor resolves the first fetcher claiming the URL.
func (e *Executor) fetcherFor(rawURL string) driven.Fetcher {
	for _, f := range e.fetchers {
		if f.CanFetch(rawURL) {
			return f
		}
	}
	return nil
}
