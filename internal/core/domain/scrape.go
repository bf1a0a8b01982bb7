package domain

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ScopeMode restricts which discovered URLs a scrape may follow.
type ScopeMode string

// Scope modes, from narrowest to widest.
const (
	// ScopeSubpages follows only URLs under the input path. Default.
	ScopeSubpages ScopeMode = "subpages"

	// ScopeHostname follows URLs on the same host.
	ScopeHostname ScopeMode = "hostname"

	// ScopeDomain follows URLs on the same registrable domain.
	ScopeDomain ScopeMode = "domain"

	// ScopeAny follows any URL.
	ScopeAny ScopeMode = "any"
)

// Valid reports whether the mode is a known scope.
func (m ScopeMode) Valid() bool {
	switch m {
	case ScopeSubpages, ScopeHostname, ScopeDomain, ScopeAny:
		return true
	}
	return false
}

// Allows reports whether candidate falls inside the scope anchored at base.
// Every scheme is treated alike: subpages scope requires the same hostname
// and a path under the base path's directory.
func (m ScopeMode) Allows(base, candidate *url.URL) bool {
	switch m {
	case ScopeAny:
		return true
	case ScopeDomain:
		return registrableDomain(base.Hostname()) == registrableDomain(candidate.Hostname())
	case ScopeHostname:
		return strings.EqualFold(base.Hostname(), candidate.Hostname())
	default: // subpages
		if !strings.EqualFold(base.Hostname(), candidate.Hostname()) {
			return false
		}
		return strings.HasPrefix(candidate.Path, basePathPrefix(base.Path))
	}
}

// basePathPrefix trims the base path to its directory: the last segment is
// dropped unless the path already ends with a slash.
func basePathPrefix(path string) string {
	if path == "" {
		return "/"
	}
	if strings.HasSuffix(path, "/") {
		return path
	}
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "/"
	}
	return path[:idx+1]
}

// registrableDomain resolves the eTLD+1 for a hostname, falling back to the
// host itself for IPs and single-label names.
func registrableDomain(host string) string {
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(domain)
}

// ScraperOptions is the full option set for a scrape job. The snapshot is
// persisted on the version row so refreshes reproduce the original run.
type ScraperOptions struct {
	// URL is the scrape entry point.
	URL string `json:"url"`

	// Library and Version identify the target collection.
	Library string `json:"library"`
	Version string `json:"version"`

	// MaxPages bounds the number of pages processed.
	MaxPages int `json:"maxPages"`

	// MaxDepth bounds BFS traversal depth.
	MaxDepth int `json:"maxDepth"`

	// MaxConcurrency caps in-flight fetches within the job.
	MaxConcurrency int `json:"maxConcurrency"`

	// Scope restricts which discovered URLs are followed.
	Scope ScopeMode `json:"scope"`

	// IncludePatterns and ExcludePatterns are glob or regex filters
	// (regex when wrapped in slashes). User patterns replace defaults.
	IncludePatterns []string `json:"includePatterns,omitempty"`
	ExcludePatterns []string `json:"excludePatterns,omitempty"`

	// RenderMode selects static fetch, browser rendering, or auto.
	RenderMode RenderMode `json:"renderMode,omitempty"`

	// IgnoreErrors keeps the crawl going past per-page failures.
	IgnoreErrors bool `json:"ignoreErrors"`

	// FollowRedirects is kept in the options snapshot only; the HTTP
	// fetcher follows redirects up to its fixed cap whatever its value.
	FollowRedirects bool `json:"followRedirects"`

	// Headers are extra request headers applied to every fetch.
	Headers map[string]string `json:"headers,omitempty"`

	// IsRefresh marks the job as a refresh of an indexed version:
	// the queue is pre-populated from the store and the llms.txt
	// probe is skipped.
	IsRefresh bool `json:"-"`
}

// RenderMode selects how pages are retrieved.
type RenderMode string

// Render modes.
const (
	RenderAuto       RenderMode = "auto"
	RenderStatic     RenderMode = "static"
	RenderPlaywright RenderMode = "playwright"
)

// Validate checks option consistency and applies no defaults.
func (o *ScraperOptions) Validate() error {
	if o.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if o.Library == "" {
		return fmt.Errorf("%w: library is required", ErrInvalidInput)
	}
	if o.Scope != "" && !o.Scope.Valid() {
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, o.Scope)
	}
	if o.MaxPages < 0 || o.MaxDepth < 0 || o.MaxConcurrency < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidInput)
	}
	return nil
}

// RefreshSeed is a previously indexed page used to pre-populate the
// refresh queue, carrying its caching validators.
type RefreshSeed struct {
	PageID       int64
	URL          string
	Depth        int
	ETag         string
	LastModified string
}

// ScrapeResult is the processed outcome of one page: the pipeline output
// handed to the store for persistence.
type ScrapeResult struct {
	// URL is the canonical page URL (after redirects).
	URL string

	// Title is the extracted title.
	Title string

	// ContentType is the negotiated MIME type.
	ContentType string

	// ETag and LastModified are the caching validators from the fetch.
	ETag         string
	LastModified string

	// Chunks is the ordered chunk sequence for the page.
	Chunks []Chunk

	// Links are the absolute URLs discovered on the page.
	Links []string

	// Errors are non-fatal per-page processing problems.
	Errors []error
}
