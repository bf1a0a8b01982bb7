package fetcher

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
)

// abortedResourceTypes are subresources the interceptor drops outright:
// they never contribute to extractable text.
var abortedResourceTypes = map[string]bool{
	"image": true,
	"font":  true,
	"media": true,
}

// ResourcePolicy is the interception policy the renderer driver consults
// for every subresource request. It owns the shared LRU cache.
type ResourcePolicy struct {
	cache *ResourceCache
}

// NewResourcePolicy creates the policy around a shared cache.
func NewResourcePolicy(cache *ResourceCache) *ResourcePolicy {
	return &ResourcePolicy{cache: cache}
}

// ShouldAbort reports whether a subresource of the given type is dropped.
func (p *ResourcePolicy) ShouldAbort(resourceType string) bool {
	return abortedResourceTypes[strings.ToLower(resourceType)]
}

// Lookup returns a cached response for the canonical URL.
func (p *ResourcePolicy) Lookup(rawURL string) (CachedResource, bool) {
	return p.cache.Get(rawURL)
}

// Record admits a completed GET response to the cache.
func (p *ResourcePolicy) Record(rawURL string, res CachedResource) {
	p.cache.Put(rawURL, res)
}

// Browser fetches pages that require dynamic rendering. One renderer
// instance is shared process-wide; each fetch runs in an isolated
// context the driver disposes even on failure.
type Browser struct {
	renderer driven.DynamicRenderer
	policy   *ResourcePolicy

	mu     sync.Mutex
	closed bool
}

var _ driven.Fetcher = (*Browser)(nil)

// NewBrowser creates the browser fetch path.
func NewBrowser(renderer driven.DynamicRenderer, policy *ResourcePolicy) *Browser {
	return &Browser{renderer: renderer, policy: policy}
}

// CanFetch reports whether the URL is HTTP(S); rendering local files is
// not supported.
func (b *Browser) CanFetch(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Fetch renders the page and returns the settled DOM as HTML.
func (b *Browser) Fetch(ctx context.Context, rawURL string, opts driven.FetchOptions) (*driven.FetchResult, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, &domain.FetchError{Kind: domain.FetchPermanent, URL: rawURL, Err: domain.ErrInvalidInput}
	}
	b.mu.Unlock()

	cleanURL, headers := splitCredentials(rawURL, opts.Headers)

	result, err := b.renderer.Render(ctx, driven.RenderRequest{
		URL:     cleanURL,
		Headers: headers,
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchTransient, URL: rawURL, Err: err}
	}
	status := StatusFromRender(result.Status)
	if ferr := classifyStatus(rawURL, status); ferr != nil {
		return nil, ferr
	}

	html := []byte(result.HTML)
	if opts.MaxSize > 0 && len(html) > opts.MaxSize {
		return nil, &domain.FetchError{Kind: domain.FetchTooLarge, URL: rawURL}
	}

	finalURL := result.FinalURL
	if finalURL == "" {
		finalURL = cleanURL
	}
	return &driven.FetchResult{
		Content:     html,
		ContentType: "text/html",
		FinalURL:    finalURL,
		Status:      status,
	}, nil
}

// Probe is not meaningful for rendered pages; it degrades to a render.
func (b *Browser) Probe(ctx context.Context, rawURL string, opts driven.FetchOptions) (*driven.ProbeResult, error) {
	res, err := b.Fetch(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	return &driven.ProbeResult{Status: res.Status, ContentType: res.ContentType}, nil
}

// Close shuts the shared renderer down. Idempotent; the driver reaps the
// underlying process even when already disconnected.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.renderer.Close()
}

// splitCredentials extracts embedded URL credentials into a Basic
// Authorization header for same-origin requests, returning the cleaned
// URL. The original header map is not mutated.
func splitCredentials(rawURL string, headers map[string]string) (string, map[string]string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL, headers
	}

	merged := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		merged[k] = v
	}
	pass, _ := u.User.Password()
	token := base64.StdEncoding.EncodeToString([]byte(u.User.Username() + ":" + pass))
	merged["Authorization"] = "Basic " + token

	clean := *u
	clean.User = nil
	return clean.String(), merged
}

// StatusFromRender normalises a renderer result status: drivers that
// cannot observe the main response report zero, treated as OK.
func StatusFromRender(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}
