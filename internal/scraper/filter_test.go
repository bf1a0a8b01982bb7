package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"HTTPS://Docs.Example.COM/Guide/", "https://docs.example.com/Guide"},
		{"https://example.com:443/x", "https://example.com/x"},
		{"http://example.com:80/x", "http://example.com/x"},
		{"https://example.com/a#frag", "https://example.com/a"},
		{"https://example.com/", "https://example.com/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalURL(tt.in), "input %s", tt.in)
	}
}

func newFilter(t *testing.T, base string, opts domain.ScraperOptions) *URLFilter {
	t.Helper()
	f, err := NewURLFilter(base, &opts)
	require.NoError(t, err)
	return f
}

func TestURLFilter_SubpagesScope(t *testing.T) {
	f := newFilter(t, "https://docs.example.com/docs/guide", domain.ScraperOptions{})

	assert.True(t, f.Allows("https://docs.example.com/docs/guide"))
	assert.True(t, f.Allows("https://docs.example.com/docs/api/reference"))
	assert.False(t, f.Allows("https://docs.example.com/blog/post"))
	assert.False(t, f.Allows("https://other.example.com/docs/guide"))
}

func TestURLFilter_HostnameAndDomainScopes(t *testing.T) {
	host := newFilter(t, "https://docs.example.com/docs/", domain.ScraperOptions{Scope: domain.ScopeHostname})
	assert.True(t, host.Allows("https://docs.example.com/anything"))
	assert.False(t, host.Allows("https://www.example.com/anything"))

	dom := newFilter(t, "https://docs.example.com/docs/", domain.ScraperOptions{Scope: domain.ScopeDomain})
	assert.True(t, dom.Allows("https://www.example.com/anything"))
	assert.False(t, dom.Allows("https://example.org/anything"))
}

func TestURLFilter_IncludeReplacesNothingExcludeReplacesDefaults(t *testing.T) {
	// Default excludes drop asset files.
	f := newFilter(t, "https://x.dev/docs/", domain.ScraperOptions{})
	assert.False(t, f.Allows("https://x.dev/docs/app.css"))
	assert.False(t, f.Allows("https://x.dev/docs/logo.png"))
	assert.True(t, f.Allows("https://x.dev/docs/page.html"))

	// User excludes replace the defaults entirely.
	f = newFilter(t, "https://x.dev/docs/", domain.ScraperOptions{ExcludePatterns: []string{"*.html"}})
	assert.True(t, f.Allows("https://x.dev/docs/app.css"))
	assert.False(t, f.Allows("https://x.dev/docs/page.html"))
}

func TestURLFilter_IncludePatterns(t *testing.T) {
	f := newFilter(t, "https://x.dev/docs/", domain.ScraperOptions{
		IncludePatterns: []string{"/api/", "*.md"},
	})
	// Globs match path or basename; only included URLs pass.
	assert.True(t, f.Allows("https://x.dev/docs/readme.md"))
	assert.False(t, f.Allows("https://x.dev/docs/page.html"))
}

func TestURLFilter_RegexPattern(t *testing.T) {
	f := newFilter(t, "https://x.dev/docs/", domain.ScraperOptions{
		IncludePatterns: []string{`/v[0-9]+/`},
	})
	assert.True(t, f.Allows("https://x.dev/docs/v2/index.html"))
	assert.False(t, f.Allows("https://x.dev/docs/latest/index.html"))
}

func TestURLFilter_InvalidRegexRejected(t *testing.T) {
	_, err := NewURLFilter("https://x.dev/docs/", &domain.ScraperOptions{
		IncludePatterns: []string{`/[unclosed/`},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestURLFilter_LlmsTxtAlwaysExcluded(t *testing.T) {
	f := newFilter(t, "https://x.dev/docs/", domain.ScraperOptions{
		IncludePatterns: []string{"*"},
		ExcludePatterns: []string{},
	})
	assert.False(t, f.Allows("https://x.dev/docs/llms.txt"))
	assert.False(t, f.Allows("https://x.dev/llms.txt"))
}
