package scraper

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

// defaultExcludePatterns are dropped when the user supplies their own
// exclude list. llms.txt files are excluded unconditionally either way.
var defaultExcludePatterns = []string{
	"*.css", "*.js", "*.mjs", "*.png", "*.jpg", "*.jpeg", "*.gif",
	"*.svg", "*.ico", "*.woff", "*.woff2", "*.ttf", "*.eot",
	"*.mp4", "*.webm", "*.mp3", "*.pdf.sig",
}

// pattern is one compiled include or exclude entry: a glob by default,
// a regular expression when wrapped in slashes.
type pattern struct {
	glob string
	re   *regexp.Regexp
}

// compilePattern parses one user pattern.
func compilePattern(raw string) (pattern, error) {
	if len(raw) > 1 && strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") {
		re, err := regexp.Compile(raw[1 : len(raw)-1])
		if err != nil {
			return pattern{}, fmt.Errorf("%w: pattern %q: %v", domain.ErrInvalidInput, raw, err)
		}
		return pattern{re: re}, nil
	}
	// Validate glob syntax eagerly.
	if _, err := path.Match(raw, ""); err != nil {
		return pattern{}, fmt.Errorf("%w: pattern %q: %v", domain.ErrInvalidInput, raw, err)
	}
	return pattern{glob: raw}, nil
}

// matches tests the pattern against a URL's path (and full URL for
// regex patterns).
func (p pattern) matches(u *url.URL) bool {
	if p.re != nil {
		return p.re.MatchString(u.String())
	}
	target := u.Path
	if ok, _ := path.Match(p.glob, target); ok {
		return true
	}
	// Globs without slashes match the basename too.
	if !strings.Contains(p.glob, "/") {
		if ok, _ := path.Match(p.glob, path.Base(target)); ok {
			return true
		}
	}
	return false
}

// URLFilter is the composite predicate every candidate URL must pass:
// scope AND include patterns AND NOT exclude patterns.
type URLFilter struct {
	base     *url.URL
	scope    domain.ScopeMode
	includes []pattern
	excludes []pattern
}

// NewURLFilter compiles the filter for a job. User-supplied exclude
// patterns replace the defaults entirely.
func NewURLFilter(baseURL string, opts *domain.ScraperOptions) (*URLFilter, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %v", domain.ErrInvalidInput, err)
	}

	scope := opts.Scope
	if scope == "" {
		scope = domain.ScopeSubpages
	}

	f := &URLFilter{base: base, scope: scope}

	for _, raw := range opts.IncludePatterns {
		p, err := compilePattern(raw)
		if err != nil {
			return nil, err
		}
		f.includes = append(f.includes, p)
	}

	excludes := opts.ExcludePatterns
	if excludes == nil {
		excludes = defaultExcludePatterns
	}
	for _, raw := range excludes {
		p, err := compilePattern(raw)
		if err != nil {
			return nil, err
		}
		f.excludes = append(f.excludes, p)
	}

	return f, nil
}

// Allows reports whether the URL passes scope, includes and excludes.
// llms.txt files never pass, regardless of user patterns.
func (f *URLFilter) Allows(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	if strings.EqualFold(path.Base(u.Path), "llms.txt") {
		return false
	}
	if !f.scope.Allows(f.base, u) {
		return false
	}
	if len(f.includes) > 0 {
		hit := false
		for _, p := range f.includes {
			if p.matches(u) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	for _, p := range f.excludes {
		if p.matches(u) {
			return false
		}
	}
	return true
}

// InScope tests only the scope predicate, for redirect re-evaluation.
func (f *URLFilter) InScope(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return f.scope.Allows(f.base, u)
}
