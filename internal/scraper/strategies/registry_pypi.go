package strategies

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
	"github.com/custodia-labs/docdex/internal/logger"
)

// pypiJSONURL is the metadata endpoint for a project.
const pypiJSONURL = "https://pypi.org/pypi/%s/json"

// PyPI resolves a Python package to its documentation entry point and
// delegates the crawl to the web strategy's rules.
type PyPI struct {
	web   *Web
	fetch driven.Fetcher
}

var _ driven.ScraperStrategy = (*PyPI)(nil)

// NewPyPI creates the PyPI registry strategy.
func NewPyPI(web *Web, fetch driven.Fetcher) *PyPI {
	return &PyPI{web: web, fetch: fetch}
}

// Name identifies the strategy.
func (p *PyPI) Name() string { return "pypi" }

// CanHandle accepts pypi: specifiers and pypi.org project pages.
func (p *PyPI) CanHandle(rawURL string) bool {
	if strings.HasPrefix(rawURL, "pypi:") {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), "pypi.org") && strings.HasPrefix(u.Path, "/project/")
}

// Scrape resolves the project's documentation URL and hands over to the
// web strategy.
func (p *PyPI) Scrape(ctx context.Context, opts *domain.ScraperOptions, seeds []domain.RefreshSeed, onProgress driven.ProgressFunc) error {
	pkg := p.projectName(opts.URL)
	if pkg == "" {
		return fmt.Errorf("%w: cannot derive pypi project from %s", domain.ErrInvalidInput, opts.URL)
	}

	docsURL, err := p.resolveDocsURL(ctx, pkg)
	if err != nil {
		return err
	}
	logger.Info("pypi project %s resolved to %s", pkg, docsURL)

	resolved := *opts
	resolved.URL = docsURL
	return p.web.Scrape(ctx, &resolved, seeds, onProgress)
}

// projectName extracts the project name from the input.
func (p *PyPI) projectName(rawURL string) string {
	if after, ok := strings.CutPrefix(rawURL, "pypi:"); ok {
		return strings.TrimSpace(after)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.Trim(strings.TrimPrefix(u.Path, "/project/"), "/")
}

// pypiMetadata is the subset of project metadata we read.
type pypiMetadata struct {
	Info struct {
		ProjectURLs map[string]string `json:"project_urls"`
		HomePage    string            `json:"home_page"`
		DocsURL     string            `json:"docs_url"`
	} `json:"info"`
}

// resolveDocsURL fetches project metadata and picks the documentation
// entry point: an explicit Documentation project URL wins, then
// docs_url, then the home page.
func (p *PyPI) resolveDocsURL(ctx context.Context, pkg string) (string, error) {
	res, err := p.fetch.Fetch(ctx, fmt.Sprintf(pypiJSONURL, url.PathEscape(pkg)), driven.FetchOptions{})
	if err != nil {
		return "", fmt.Errorf("pypi registry: %w", err)
	}

	var meta pypiMetadata
	if err := json.Unmarshal(res.Content, &meta); err != nil {
		return "", fmt.Errorf("pypi metadata: %w", err)
	}

	for key, u := range meta.Info.ProjectURLs {
		if strings.EqualFold(key, "documentation") || strings.EqualFold(key, "docs") {
			if u != "" {
				return u, nil
			}
		}
	}
	if meta.Info.DocsURL != "" {
		return meta.Info.DocsURL, nil
	}
	if meta.Info.HomePage != "" {
		return meta.Info.HomePage, nil
	}
	return "", fmt.Errorf("%w: project %s has no documentation url", domain.ErrNotFound, pkg)
}
