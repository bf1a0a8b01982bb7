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

// npmRegistryURL is the metadata endpoint for a package.
const npmRegistryURL = "https://registry.npmjs.org/%s"

// Npm resolves an npm package to its documentation entry point and
// delegates the crawl to the web strategy's rules.
type Npm struct {
	web   *Web
	fetch driven.Fetcher
}

var _ driven.ScraperStrategy = (*Npm)(nil)

// NewNpm creates the npm registry strategy.
func NewNpm(web *Web, fetch driven.Fetcher) *Npm {
	return &Npm{web: web, fetch: fetch}
}

// Name identifies the strategy.
func (n *Npm) Name() string { return "npm" }

// CanHandle accepts npm: specifiers and npmjs.com package pages.
func (n *Npm) CanHandle(rawURL string) bool {
	if strings.HasPrefix(rawURL, "npm:") {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return (host == "www.npmjs.com" || host == "npmjs.com") && strings.HasPrefix(u.Path, "/package/")
}

// Scrape resolves the package's documentation URL and hands over to the
// web strategy.
func (n *Npm) Scrape(ctx context.Context, opts *domain.ScraperOptions, seeds []domain.RefreshSeed, onProgress driven.ProgressFunc) error {
	pkg := n.packageName(opts.URL)
	if pkg == "" {
		return fmt.Errorf("%w: cannot derive npm package from %s", domain.ErrInvalidInput, opts.URL)
	}

	docsURL, err := n.resolveDocsURL(ctx, pkg)
	if err != nil {
		return err
	}
	logger.Info("npm package %s resolved to %s", pkg, docsURL)

	// The snapshot keeps the registry input; the crawl anchors at the
	// resolved documentation site.
	resolved := *opts
	resolved.URL = docsURL
	return n.web.Scrape(ctx, &resolved, seeds, onProgress)
}

// packageName extracts the package name from the input.
func (n *Npm) packageName(rawURL string) string {
	if after, ok := strings.CutPrefix(rawURL, "npm:"); ok {
		return strings.TrimSpace(after)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.Trim(strings.TrimPrefix(u.Path, "/package/"), "/")
}

// npmMetadata is the subset of registry metadata we read.
type npmMetadata struct {
	Homepage   string `json:"homepage"`
	Repository struct {
		URL string `json:"url"`
	} `json:"repository"`
}

// resolveDocsURL fetches registry metadata and picks the documentation
// entry point: homepage first, repository second.
func (n *Npm) resolveDocsURL(ctx context.Context, pkg string) (string, error) {
	res, err := n.fetch.Fetch(ctx, fmt.Sprintf(npmRegistryURL, url.PathEscape(pkg)), driven.FetchOptions{})
	if err != nil {
		return "", fmt.Errorf("npm registry: %w", err)
	}

	var meta npmMetadata
	if err := json.Unmarshal(res.Content, &meta); err != nil {
		return "", fmt.Errorf("npm registry metadata: %w", err)
	}

	if meta.Homepage != "" {
		return strings.Split(meta.Homepage, "#")[0], nil
	}
	if repo := normalizeRepoURL(meta.Repository.URL); repo != "" {
		return repo, nil
	}
	return "", fmt.Errorf("%w: package %s has no homepage or repository", domain.ErrNotFound, pkg)
}

// normalizeRepoURL strips VCS prefixes and suffixes from repository URLs.
func normalizeRepoURL(repo string) string {
	repo = strings.TrimPrefix(repo, "git+")
	repo = strings.TrimSuffix(repo, ".git")
	if strings.HasPrefix(repo, "git://") {
		repo = "https://" + strings.TrimPrefix(repo, "git://")
	}
	if !strings.HasPrefix(repo, "http") {
		return ""
	}
	return repo
}
