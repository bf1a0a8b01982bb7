package strategies

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	gogithub "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
	"github.com/custodia-labs/docdex/internal/logger"
	"github.com/custodia-labs/docdex/internal/scraper"
)

// githubToken caches the process-wide API token lookup.
var githubToken = sync.OnceValue(func() string {
	for _, key := range []string{"DOCS_MCP_GITHUB_TOKEN", "GITHUB_TOKEN"} {
		if tok := os.Getenv(key); tok != "" {
			return tok
		}
	}
	return ""
})

// GitHub enumerates repository files via the GitHub API. Repository
// inputs list the default branch's tree once per job and crawl the raw
// file URLs; blob URLs index a single file; wiki URLs delegate to the
// web strategy over the rendered wiki pages.
type GitHub struct {
	executor *scraper.Executor
	web      *Web

	mu     sync.Mutex
	client *gogithub.Client
}

var _ driven.ScraperStrategy = (*GitHub)(nil)

// NewGitHub creates the GitHub strategy.
func NewGitHub(executor *scraper.Executor, web *Web) *GitHub {
	return &GitHub{executor: executor, web: web}
}

// Name identifies the strategy.
func (g *GitHub) Name() string { return "github" }

// CanHandle accepts github.com repository, blob and wiki URLs.
func (g *GitHub) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return false
	}
	owner, repo, _, _ := splitRepoPath(u.Path)
	return owner != "" && repo != ""
}

// Scrape dispatches on the URL form.
func (g *GitHub) Scrape(ctx context.Context, opts *domain.ScraperOptions, seeds []domain.RefreshSeed, onProgress driven.ProgressFunc) error {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	owner, repo, kind, rest := splitRepoPath(u.Path)
	if owner == "" || repo == "" {
		return fmt.Errorf("%w: not a repository url: %s", domain.ErrInvalidInput, opts.URL)
	}

	switch kind {
	case "wiki":
		// Wikis are crawled as rendered web pages.
		return g.web.Scrape(ctx, opts, seeds, onProgress)
	case "blob":
		return g.scrapeBlob(ctx, opts, owner, repo, rest, seeds, onProgress)
	default:
		return g.scrapeTree(ctx, opts, owner, repo, seeds, onProgress)
	}
}

// scrapeBlob indexes the raw form of a single file.
func (g *GitHub) scrapeBlob(ctx context.Context, opts *domain.ScraperOptions, owner, repo, refAndPath string, seeds []domain.RefreshSeed, onProgress driven.ProgressFunc) error {
	rawURL := fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s", owner, repo, refAndPath)

	scoped := *opts
	scoped.URL = rawURL
	filter, err := scraper.NewURLFilter(rawURL, &scoped)
	if err != nil {
		return err
	}

	queue := refreshQueue(seeds)
	if !opts.IsRefresh {
		queue = []scraper.QueueItem{{URL: rawURL, Depth: 0}}
	}
	return g.executor.Run(ctx, &scoped, filter, queue, onProgress)
}

// scrapeTree enumerates the repository tree and crawls every blob's raw
// URL. The default branch is resolved once per job.
func (g *GitHub) scrapeTree(ctx context.Context, opts *domain.ScraperOptions, owner, repo string, seeds []domain.RefreshSeed, onProgress driven.ProgressFunc) error {
	rawBase := fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/", owner, repo)

	scoped := *opts
	scoped.URL = rawBase
	filter, err := scraper.NewURLFilter(rawBase, &scoped)
	if err != nil {
		return err
	}

	if opts.IsRefresh {
		return g.executor.Run(ctx, &scoped, filter, refreshQueue(seeds), onProgress)
	}

	client := g.apiClient(ctx)

	repository, _, err := client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return fmt.Errorf("resolving repository %s/%s: %w", owner, repo, err)
	}
	branch := repository.GetDefaultBranch()

	tree, _, err := client.Git.GetTree(ctx, owner, repo, branch, true)
	if err != nil {
		return fmt.Errorf("listing tree %s/%s@%s: %w", owner, repo, branch, err)
	}
	if tree.GetTruncated() {
		logger.Warn("tree listing for %s/%s is truncated", owner, repo)
	}

	var queue []scraper.QueueItem
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		path := entry.GetPath()
		rawURL := rawBase + branch + "/" + path
		if !filter.Allows(rawURL) {
			continue
		}
		queue = append(queue, scraper.QueueItem{
			URL:   rawURL,
			Depth: strings.Count(path, "/"),
		})
	}
	logger.Info("github %s/%s@%s: %d files queued", owner, repo, branch, len(queue))

	return g.executor.Run(ctx, &scoped, filter, queue, onProgress)
}

// apiClient returns the shared API client, authenticated when a token is
// configured. Cached per process.
func (g *GitHub) apiClient(ctx context.Context) *gogithub.Client {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client
	}

	var httpClient *http.Client
	if tok := githubToken(); tok != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok}))
	}
	g.client = gogithub.NewClient(httpClient)
	return g.client
}

// refreshQueue converts stored pages into conditional queue items.
func refreshQueue(seeds []domain.RefreshSeed) []scraper.QueueItem {
	queue := make([]scraper.QueueItem, 0, len(seeds))
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
	return queue
}

// splitRepoPath splits /owner/repo[/kind[/rest]] into its parts.
func splitRepoPath(path string) (owner, repo, kind, rest string) {
	parts := strings.SplitN(strings.Trim(path, "/"), "/", 4)
	if len(parts) >= 1 {
		owner = parts[0]
	}
	if len(parts) >= 2 {
		repo = strings.TrimSuffix(parts[1], ".git")
	}
	if len(parts) >= 3 {
		kind = parts[2]
	}
	if len(parts) >= 4 {
		rest = parts[3]
	}
	return owner, repo, kind, rest
}
