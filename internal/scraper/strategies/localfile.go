package strategies

import (
	"context"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
	"github.com/custodia-labs/docdex/internal/scraper"
)

// LocalFile indexes local files and directory trees. Directories are
// walked recursively up to the depth budget, honouring the include and
// exclude patterns.
type LocalFile struct {
	executor *scraper.Executor
}

var _ driven.ScraperStrategy = (*LocalFile)(nil)

// NewLocalFile creates the local file strategy.
func NewLocalFile(executor *scraper.Executor) *LocalFile {
	return &LocalFile{executor: executor}
}

// Name identifies the strategy.
func (l *LocalFile) Name() string { return "local-file" }

// CanHandle accepts file URLs and bare paths.
func (l *LocalFile) CanHandle(rawURL string) bool {
	if strings.HasPrefix(rawURL, "file://") {
		return true
	}
	u, err := url.Parse(rawURL)
	return err != nil || u.Scheme == ""
}

// Scrape enumerates the tree and runs the executor over the files.
func (l *LocalFile) Scrape(ctx context.Context, opts *domain.ScraperOptions, seeds []domain.RefreshSeed, onProgress driven.ProgressFunc) error {
	root := strings.TrimPrefix(opts.URL, "file://")

	var queue []scraper.QueueItem

	if opts.IsRefresh {
		filter, err := scraper.NewURLFilter(root, opts)
		if err != nil {
			return err
		}
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
		return l.executor.Run(ctx, opts, filter, queue, onProgress)
	}

	info, err := os.Stat(root)
	if err != nil {
		return &domain.FetchError{Kind: domain.FetchNotFound, URL: opts.URL, Err: err}
	}

	// Anchor the subpages scope at the directory itself, not its parent.
	scopeBase := root
	if info.IsDir() && !strings.HasSuffix(scopeBase, "/") {
		scopeBase += "/"
	}
	filter, err := scraper.NewURLFilter(scopeBase, opts)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		queue = append(queue, scraper.QueueItem{URL: root, Depth: 0})
		return l.executor.Run(ctx, opts, filter, queue, onProgress)
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			// Hidden directories are not descended into.
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		depth := strings.Count(filepath.ToSlash(rel), "/")
		if filter.Allows(path) {
			queue = append(queue, scraper.QueueItem{URL: path, Depth: depth})
		}
		return nil
	})
	if walkErr != nil {
		return walkErr
	}

	return l.executor.Run(ctx, opts, filter, queue, onProgress)
}
