package strategies

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
	"github.com/custodia-labs/docdex/internal/fetcher"
	"github.com/custodia-labs/docdex/internal/pipelines"
	"github.com/custodia-labs/docdex/internal/scraper"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
		require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	}
}

func localStack() *scraper.Executor {
	return scraper.NewExecutor(
		[]driven.Fetcher{fetcher.NewFile()},
		pipelines.NewProcessor(nil),
		scraper.ExecutorConfig{PageTimeout: 5 * time.Second},
	)
}

func TestLocalFile_WalksDirectory(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"index.md":        "# Index",
		"guide/setup.md":  "# Setup",
		"guide/deep/x.md": "# Deep",
		".hidden/skip.md": "# Hidden",
		"image.png":       "binary",
	})

	local := NewLocalFile(localStack())
	opts := &domain.ScraperOptions{
		URL: root, Library: "lib",
		MaxPages: 50, MaxDepth: 5, MaxConcurrency: 2,
	}

	updates, onProgress, mu := collectProgress()
	require.NoError(t, local.Scrape(context.Background(), opts, nil, onProgress))

	mu.Lock()
	defer mu.Unlock()

	var urls []string
	for _, u := range *updates {
		urls = append(urls, u.URL)
	}
	assert.Contains(t, urls, filepath.Join(root, "index.md"))
	assert.Contains(t, urls, filepath.Join(root, "guide/setup.md"))
	assert.Contains(t, urls, filepath.Join(root, "guide/deep/x.md"))
	assert.NotContains(t, urls, filepath.Join(root, ".hidden/skip.md"))
	// Default excludes drop image assets.
	assert.NotContains(t, urls, filepath.Join(root, "image.png"))
}

func TestLocalFile_SingleFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"only.md": "# Only"})

	local := NewLocalFile(localStack())
	opts := &domain.ScraperOptions{
		URL: filepath.Join(root, "only.md"), Library: "lib",
		MaxPages: 5, MaxDepth: 1, MaxConcurrency: 1,
	}

	updates, onProgress, mu := collectProgress()
	require.NoError(t, local.Scrape(context.Background(), opts, nil, onProgress))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *updates, 1)
	require.NotNil(t, (*updates)[0].Result)
	assert.Equal(t, "Only", (*updates)[0].Result.Title)
}

func TestLocalFile_MissingPath(t *testing.T) {
	local := NewLocalFile(localStack())
	opts := &domain.ScraperOptions{URL: "/no/such/dir", Library: "lib", MaxPages: 5}

	_, onProgress, _ := collectProgress()
	err := local.Scrape(context.Background(), opts, nil, onProgress)
	require.Error(t, err)
}

func TestLocalFile_IncludePatterns(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.md":  "# A",
		"b.txt": "B",
	})

	local := NewLocalFile(localStack())
	opts := &domain.ScraperOptions{
		URL: root, Library: "lib",
		MaxPages: 10, MaxDepth: 2, MaxConcurrency: 1,
		IncludePatterns: []string{"*.md"},
	}

	updates, onProgress, mu := collectProgress()
	require.NoError(t, local.Scrape(context.Background(), opts, nil, onProgress))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *updates, 1)
	assert.Equal(t, filepath.Join(root, "a.md"), (*updates)[0].URL)
}