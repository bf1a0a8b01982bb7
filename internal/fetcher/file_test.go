package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
)

func TestFile_FetchMarkdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guide.md")
	require.NoError(t, os.WriteFile(path, []byte("# Guide"), 0600))

	res, err := NewFile().Fetch(context.Background(), path, driven.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "text/markdown", res.ContentType)
	assert.Equal(t, "# Guide", string(res.Content))
	assert.NotEmpty(t, res.LastModified)
}

func TestFile_SniffsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.weird")
	require.NoError(t, os.WriteFile(path, []byte("<!DOCTYPE html><html><body>x</body></html>"), 0600))

	res, err := NewFile().Fetch(context.Background(), path, driven.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "text/html", res.ContentType)
}

func TestFile_NotFound(t *testing.T) {
	_, err := NewFile().Fetch(context.Background(), "/no/such/file.md", driven.FetchOptions{})
	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, domain.FetchNotFound, fe.Kind)
}

func TestFile_DirectoryRejected(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFile().Fetch(context.Background(), dir, driven.FetchOptions{})
	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, domain.FetchPermanent, fe.Kind)
}

func TestFile_TooLarge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0600))

	_, err := NewFile().Fetch(context.Background(), path, driven.FetchOptions{MaxSize: 1024})
	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, domain.FetchTooLarge, fe.Kind)
}

func TestFile_FileURLScheme(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.txt")
	require.NoError(t, os.WriteFile(path, []byte("text"), 0600))

	f := NewFile()
	assert.True(t, f.CanFetch("file://"+path))
	assert.True(t, f.CanFetch(path))
	assert.False(t, f.CanFetch("https://example.com"))

	res, err := f.Fetch(context.Background(), "file://"+path, driven.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "text", string(res.Content))
}
