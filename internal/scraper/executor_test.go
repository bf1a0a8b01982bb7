package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
)

// fakeSite is an in-memory fetcher serving a link graph.
type fakeSite struct {
	mu      sync.Mutex
	pages   map[string]fakePage
	fetched []string
	delay   time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

type fakePage struct {
	links       []string
	status      int
	notModified bool
}

func (s *fakeSite) CanFetch(string) bool { return true }

func (s *fakeSite) Fetch(ctx context.Context, rawURL string, _ driven.FetchOptions) (*driven.FetchResult, error) {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		max := s.maxInFlight.Load()
		if cur <= max || s.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, &domain.FetchError{Kind: domain.FetchTransient, URL: rawURL, Err: ctx.Err()}
		}
	}

	s.mu.Lock()
	s.fetched = append(s.fetched, rawURL)
	page, ok := s.pages[rawURL]
	s.mu.Unlock()

	if !ok {
		return nil, &domain.FetchError{Kind: domain.FetchNotFound, URL: rawURL, Status: 404}
	}
	if page.notModified {
		return &driven.FetchResult{Status: 304, NotModified: true, FinalURL: rawURL}, nil
	}
	if page.status != 0 && page.status != 200 {
		return nil, &domain.FetchError{Kind: domain.FetchPermanent, URL: rawURL, Status: page.status}
	}

	var b strings.Builder
	b.WriteString("<html><head><title>t</title></head><body>")
	for _, link := range page.links {
		fmt.Fprintf(&b, `<a href="%s">x</a>`, link)
	}
	b.WriteString("<p>content body text</p></body></html>")
	return &driven.FetchResult{
		Content:     []byte(b.String()),
		ContentType: "text/html",
		FinalURL:    rawURL,
		Status:      200,
	}, nil
}

func (s *fakeSite) Probe(context.Context, string, driven.FetchOptions) (*driven.ProbeResult, error) {
	return &driven.ProbeResult{Status: 404}, nil
}

// fakeProcessor converts fake pages into one-chunk results, echoing the
// links embedded in the HTML.
type fakeProcessor struct{}

func (fakeProcessor) Process(_ context.Context, fetched *driven.FetchResult, sourceURL string, _ driven.ProcessOptions) (*domain.ScrapeResult, error) {
	var links []string
	for _, part := range strings.Split(string(fetched.Content), `href="`)[1:] {
		if end := strings.Index(part, `"`); end > 0 {
			links = append(links, part[:end])
		}
	}
	url := fetched.FinalURL
	if url == "" {
		url = sourceURL
	}
	return &domain.ScrapeResult{
		URL:         url,
		Title:       "t",
		ContentType: fetched.ContentType,
		Chunks: []domain.Chunk{{
			Content: "content", SortOrder: 0, Types: domain.ChunkTypeContent,
		}},
		Links: links,
	}, nil
}

type progressRecorder struct {
	mu      sync.Mutex
	updates []driven.ProgressUpdate
}

func (r *progressRecorder) fn(_ context.Context, u driven.ProgressUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return nil
}

func (r *progressRecorder) urls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var urls []string
	for _, u := range r.updates {
		urls = append(urls, u.URL)
	}
	return urls
}

func testExecutor(site *fakeSite) *Executor {
	return NewExecutor([]driven.Fetcher{site}, fakeProcessor{}, ExecutorConfig{
		PageTimeout: 5 * time.Second,
	})
}

func crawlOpts(url string) *domain.ScraperOptions {
	return &domain.ScraperOptions{
		URL:            url,
		Library:        "lib",
		MaxPages:       100,
		MaxDepth:       3,
		MaxConcurrency: 2,
	}
}

func TestExecutor_BreadthFirstTraversal(t *testing.T) {
	site := &fakeSite{pages: map[string]fakePage{
		"https://x.dev/docs/":      {links: []string{"https://x.dev/docs/a", "https://x.dev/docs/b"}},
		"https://x.dev/docs/a":     {links: []string{"https://x.dev/docs/deep"}},
		"https://x.dev/docs/b":     {},
		"https://x.dev/docs/deep":  {},
		"https://x.dev/other/skip": {},
	}}

	opts := crawlOpts("https://x.dev/docs/")
	filter, err := NewURLFilter(opts.URL, opts)
	require.NoError(t, err)

	rec := &progressRecorder{}
	err = testExecutor(site).Run(context.Background(), opts, filter, []QueueItem{{URL: opts.URL}}, rec.fn)
	require.NoError(t, err)

	urls := rec.urls()
	assert.Len(t, urls, 4)
	assert.Equal(t, "https://x.dev/docs/", urls[0])
	assert.NotContains(t, urls, "https://x.dev/other/skip")

	// PagesDone is non-decreasing.
	for i, u := range rec.updates {
		assert.Equal(t, i+1, u.PagesDone)
	}
}

func TestExecutor_RespectsMaxPages(t *testing.T) {
	pages := map[string]fakePage{}
	var links []string
	for i := 0; i < 20; i++ {
		u := fmt.Sprintf("https://x.dev/docs/p%d", i)
		links = append(links, u)
		pages[u] = fakePage{}
	}
	pages["https://x.dev/docs/"] = fakePage{links: links}

	site := &fakeSite{pages: pages}
	opts := crawlOpts("https://x.dev/docs/")
	opts.MaxPages = 5

	filter, err := NewURLFilter(opts.URL, opts)
	require.NoError(t, err)

	rec := &progressRecorder{}
	require.NoError(t, testExecutor(site).Run(context.Background(), opts, filter, []QueueItem{{URL: opts.URL}}, rec.fn))
	assert.Len(t, rec.updates, 5)
}

func TestExecutor_RespectsMaxDepth(t *testing.T) {
	site := &fakeSite{pages: map[string]fakePage{
		"https://x.dev/docs/":   {links: []string{"https://x.dev/docs/d1"}},
		"https://x.dev/docs/d1": {links: []string{"https://x.dev/docs/d2"}},
		"https://x.dev/docs/d2": {links: []string{"https://x.dev/docs/d3"}},
		"https://x.dev/docs/d3": {},
	}}

	opts := crawlOpts("https://x.dev/docs/")
	opts.MaxDepth = 1
	filter, err := NewURLFilter(opts.URL, opts)
	require.NoError(t, err)

	rec := &progressRecorder{}
	require.NoError(t, testExecutor(site).Run(context.Background(), opts, filter, []QueueItem{{URL: opts.URL}}, rec.fn))

	urls := rec.urls()
	assert.Contains(t, urls, "https://x.dev/docs/d1")
	assert.NotContains(t, urls, "https://x.dev/docs/d2")
}

func TestExecutor_ConcurrencyCap(t *testing.T) {
	pages := map[string]fakePage{}
	var links []string
	for i := 0; i < 10; i++ {
		u := fmt.Sprintf("https://x.dev/docs/p%d", i)
		links = append(links, u)
		pages[u] = fakePage{}
	}
	pages["https://x.dev/docs/"] = fakePage{links: links}

	site := &fakeSite{pages: pages, delay: 20 * time.Millisecond}
	opts := crawlOpts("https://x.dev/docs/")
	opts.MaxConcurrency = 3

	filter, err := NewURLFilter(opts.URL, opts)
	require.NoError(t, err)

	rec := &progressRecorder{}
	require.NoError(t, testExecutor(site).Run(context.Background(), opts, filter, []QueueItem{{URL: opts.URL}}, rec.fn))

	assert.LessOrEqual(t, site.maxInFlight.Load(), int32(3))
	assert.Len(t, rec.updates, 11)
}

func TestExecutor_Deduplicates(t *testing.T) {
	site := &fakeSite{pages: map[string]fakePage{
		"https://x.dev/docs/":  {links: []string{"https://x.dev/docs/a", "https://x.dev/docs/a/", "https://x.dev/docs/a#sec"}},
		"https://x.dev/docs/a": {},
	}}

	opts := crawlOpts("https://x.dev/docs/")
	filter, err := NewURLFilter(opts.URL, opts)
	require.NoError(t, err)

	rec := &progressRecorder{}
	require.NoError(t, testExecutor(site).Run(context.Background(), opts, filter, []QueueItem{{URL: opts.URL}}, rec.fn))
	assert.Len(t, rec.updates, 2)
}

func TestExecutor_Cancellation(t *testing.T) {
	pages := map[string]fakePage{}
	var links []string
	for i := 0; i < 50; i++ {
		u := fmt.Sprintf("https://x.dev/docs/p%d", i)
		links = append(links, u)
		pages[u] = fakePage{}
	}
	pages["https://x.dev/docs/"] = fakePage{links: links}

	site := &fakeSite{pages: pages, delay: 10 * time.Millisecond}
	opts := crawlOpts("https://x.dev/docs/")
	filter, err := NewURLFilter(opts.URL, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &progressRecorder{}

	done := make(chan error, 1)
	go func() {
		done <- testExecutor(site).Run(ctx, opts, filter, []QueueItem{{URL: opts.URL}}, rec.fn)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not stop after cancellation")
	}

	// Partial progress was reported, the crawl did not finish, and no
	// fetches leak after return.
	assert.Less(t, len(rec.updates), 51)
	assert.Equal(t, int32(0), site.inFlight.Load())
}

func TestExecutor_PerPageErrorContinuesWhenIgnored(t *testing.T) {
	site := &fakeSite{pages: map[string]fakePage{
		"https://x.dev/docs/":     {links: []string{"https://x.dev/docs/bad", "https://x.dev/docs/good"}},
		"https://x.dev/docs/bad":  {status: 418},
		"https://x.dev/docs/good": {},
	}}

	opts := crawlOpts("https://x.dev/docs/")
	opts.IgnoreErrors = true
	filter, err := NewURLFilter(opts.URL, opts)
	require.NoError(t, err)

	rec := &progressRecorder{}
	require.NoError(t, testExecutor(site).Run(context.Background(), opts, filter, []QueueItem{{URL: opts.URL}}, rec.fn))

	var failed, succeeded int
	for _, u := range rec.updates {
		if u.Err != nil {
			failed++
		} else {
			succeeded++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, succeeded)
}

func TestExecutor_FatalPageErrorStopsJob(t *testing.T) {
	site := &fakeSite{pages: map[string]fakePage{
		"https://x.dev/docs/": {status: 418},
	}}

	opts := crawlOpts("https://x.dev/docs/")
	opts.IgnoreErrors = false
	filter, err := NewURLFilter(opts.URL, opts)
	require.NoError(t, err)

	rec := &progressRecorder{}
	err = testExecutor(site).Run(context.Background(), opts, filter, []QueueItem{{URL: opts.URL}}, rec.fn)
	require.Error(t, err)
}

func TestExecutor_RefreshNotModifiedAndDeleted(t *testing.T) {
	site := &fakeSite{pages: map[string]fakePage{
		"https://x.dev/docs/same": {notModified: true},
		// /docs/gone is absent: the fetch returns 404.
	}}

	opts := crawlOpts("https://x.dev/docs/")
	opts.IsRefresh = true
	filter, err := NewURLFilter(opts.URL, opts)
	require.NoError(t, err)

	seeds := []QueueItem{
		{URL: "https://x.dev/docs/same", PageID: 1, ETag: `"v1"`, Refresh: true},
		{URL: "https://x.dev/docs/gone", PageID: 2, Refresh: true},
	}

	rec := &progressRecorder{}
	require.NoError(t, testExecutor(site).Run(context.Background(), opts, filter, seeds, rec.fn))
	require.Len(t, rec.updates, 2)

	byURL := map[string]driven.ProgressUpdate{}
	for _, u := range rec.updates {
		byURL[u.URL] = u
	}
	assert.True(t, byURL["https://x.dev/docs/same"].NotModified)
	assert.Equal(t, int64(1), byURL["https://x.dev/docs/same"].PageID)
	assert.True(t, byURL["https://x.dev/docs/gone"].Deleted)
	assert.Equal(t, int64(2), byURL["https://x.dev/docs/gone"].PageID)
}
