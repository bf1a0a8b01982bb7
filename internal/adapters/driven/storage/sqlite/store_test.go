package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult(url string, bodies ...string) *domain.ScrapeResult {
	result := &domain.ScrapeResult{
		URL:         url,
		Title:       "Sample Page",
		ContentType: "text/markdown",
		ETag:        `"v1"`,
	}
	for _, body := range bodies {
		result.Chunks = append(result.Chunks, domain.Chunk{
			Content: body,
			Section: domain.SectionMeta{Level: 1, Path: domain.SectionPath{"Guide"}},
			Types:   domain.ChunkTypeContent,
		})
	}
	return result
}

func TestStore_MigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening applies nothing new and succeeds.
	store, err = NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestStore_ResolveVersionID(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	id1, err := store.ResolveVersionID(ctx, "React", "18.2.0")
	require.NoError(t, err)
	id2, err := store.ResolveVersionID(ctx, "react", "18.2.0")
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "library names are case-insensitive")

	id3, err := store.ResolveVersionID(ctx, "react", "")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3, "the empty version is its own collection")

	v, err := store.GetVersion(ctx, "react", "18.2.0")
	require.NoError(t, err)
	assert.Equal(t, domain.VersionNotIndexed, v.Status)
}

func TestStore_AddDocumentsReplacesChunkSet(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddDocuments(ctx, "lib", "1.0.0", 0,
		sampleResult("https://x/y", "first chunk", "second chunk", "third chunk")))

	chunks, err := store.FindChunksByURL(ctx, "lib", "1.0.0", "https://x/y")
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	// Re-ingest with fewer chunks fully replaces the prior set.
	require.NoError(t, store.AddDocuments(ctx, "lib", "1.0.0", 0,
		sampleResult("https://x/y", "replacement only")))

	chunks, err = store.FindChunksByURL(ctx, "lib", "1.0.0", "https://x/y")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "replacement only", chunks[0].Content)

	// Page identity is preserved across the upsert.
	versionID, err := store.ResolveVersionID(ctx, "lib", "1.0.0")
	require.NoError(t, err)
	seeds, err := store.ListPages(ctx, versionID)
	require.NoError(t, err)
	require.Len(t, seeds, 1)
}

func TestStore_SortOrderContiguous(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddDocuments(ctx, "lib", "", 0,
		sampleResult("https://x/y", "a", "b", "c", "d")))

	chunks, err := store.FindChunksByURL(ctx, "lib", "", "https://x/y")
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	for i, c := range chunks {
		assert.Equal(t, i, c.SortOrder)
	}
}

func TestStore_IdempotentReingest(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	result := sampleResult("https://x/y", "alpha", "beta")
	require.NoError(t, store.AddDocuments(ctx, "lib", "", 0, result))
	first, err := store.FindChunksByURL(ctx, "lib", "", "https://x/y")
	require.NoError(t, err)

	require.NoError(t, store.AddDocuments(ctx, "lib", "", 0, result))
	second, err := store.FindChunksByURL(ctx, "lib", "", "https://x/y")
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Content, second[i].Content)
		assert.Equal(t, first[i].SortOrder, second[i].SortOrder)
		assert.Equal(t, first[i].Section.Path, second[i].Section.Path)
	}
}

func TestStore_DeletePage(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddDocuments(ctx, "lib", "", 0, sampleResult("https://x/y", "a", "b")))

	versionID, err := store.ResolveVersionID(ctx, "lib", "")
	require.NoError(t, err)
	page, err := store.FindPageByURL(ctx, versionID, "https://x/y")
	require.NoError(t, err)

	require.NoError(t, store.DeletePage(ctx, page.ID))

	_, err = store.FindPageByURL(ctx, versionID, "https://x/y")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	chunks, err := store.FindChunksByURL(ctx, "lib", "", "https://x/y")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	// The FTS mirror no longer matches the deleted content.
	hits, err := store.SearchFTS(ctx, "lib", "", "a", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_RemoveVersionCascade(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddDocuments(ctx, "lib", "1.0.0", 0, sampleResult("https://x/a", "one", "two")))
	require.NoError(t, store.AddDocuments(ctx, "lib", "2.0.0", 0, sampleResult("https://x/b", "three")))

	res, err := store.RemoveVersion(ctx, "lib", "1.0.0", true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.DocumentsDeleted)
	assert.True(t, res.VersionDeleted)
	assert.False(t, res.LibraryDeleted, "another version remains")

	exists, err := store.CheckDocumentExists(ctx, "lib", "1.0.0")
	require.NoError(t, err)
	assert.False(t, exists)

	// Removing the last version with removeLibraryIfEmpty deletes the
	// library too.
	res, err = store.RemoveVersion(ctx, "lib", "2.0.0", true)
	require.NoError(t, err)
	assert.True(t, res.LibraryDeleted)

	libs, err := store.ListLibraries(ctx)
	require.NoError(t, err)
	assert.Empty(t, libs)
}

func TestStore_RemoveVersionKeepsLibraryWhenNotAsked(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddDocuments(ctx, "lib", "1.0.0", 0, sampleResult("https://x/a", "one")))

	res, err := store.RemoveVersion(ctx, "lib", "1.0.0", false)
	require.NoError(t, err)
	assert.True(t, res.VersionDeleted)
	assert.False(t, res.LibraryDeleted)

	libs, err := store.ListLibraries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib"}, libs)
}

func TestStore_RemoveVersionNotFound(t *testing.T) {
	store := testStore(t)
	_, err := store.RemoveVersion(context.Background(), "ghost", "1.0.0", false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_VersionStatusAndProgress(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	id, err := store.ResolveVersionID(ctx, "lib", "1.0.0")
	require.NoError(t, err)

	require.NoError(t, store.UpdateVersionStatus(ctx, id, domain.VersionRunning, ""))
	require.NoError(t, store.UpdateVersionProgress(ctx, id, 42, 100))
	require.NoError(t, store.SetVersionSource(ctx, id, "https://x/docs", &domain.ScraperOptions{
		URL: "https://x/docs", Library: "lib", Version: "1.0.0", MaxPages: 100,
	}))

	v, err := store.GetVersion(ctx, "lib", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, domain.VersionRunning, v.Status)
	assert.Equal(t, 42, v.PagesDone)
	assert.Equal(t, 100, v.PagesMax)
	assert.Equal(t, "https://x/docs", v.SourceURL)
	require.NotNil(t, v.ScraperOptions)
	assert.Equal(t, 100, v.ScraperOptions.MaxPages)
}

func TestStore_TouchPage(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddDocuments(ctx, "lib", "", 1, sampleResult("https://x/y", "a")))
	versionID, err := store.ResolveVersionID(ctx, "lib", "")
	require.NoError(t, err)
	page, err := store.FindPageByURL(ctx, versionID, "https://x/y")
	require.NoError(t, err)

	require.NoError(t, store.TouchPage(ctx, page.ID, `"v2"`, "Tue, 01 Jul 2025 00:00:00 GMT"))

	seeds, err := store.ListPages(ctx, versionID)
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	assert.Equal(t, `"v2"`, seeds[0].ETag)
	assert.Equal(t, 1, seeds[0].Depth)
}

func TestStore_QueryLibraryVersionsOrdering(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for _, v := range []string{"1.2.0", "10.0.0", "2.0.0"} {
		_, err := store.ResolveVersionID(ctx, "alpha", v)
		require.NoError(t, err)
	}
	_, err := store.ResolveVersionID(ctx, "alpha", "")
	require.NoError(t, err)
	require.NoError(t, store.AddDocuments(ctx, "beta", "0.1.0", 0, sampleResult("https://b/x", "content")))

	summaries, err := store.QueryLibraryVersions(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 5)

	// alpha versions: empty sorts as latest, then semver descending
	// (numeric, not lexical: 10 > 2 > 1.2).
	var alpha []string
	for _, sum := range summaries {
		if sum.Library == "alpha" {
			alpha = append(alpha, sum.Version.Name)
		}
	}
	assert.Equal(t, []string{"", "10.0.0", "2.0.0", "1.2.0"}, alpha)

	// Zero-page versions are listed; beta aggregates its documents.
	last := summaries[len(summaries)-1]
	assert.Equal(t, "beta", last.Library)
	assert.Equal(t, 1, last.DocumentCount)
	assert.Equal(t, 1, last.PageCount)
	assert.False(t, last.IndexedAt.IsZero())
}

func TestStore_ReadOnlyForbidsIngest(t *testing.T) {
	store, err := NewStore(t.TempDir(), WithReadOnly(true))
	require.NoError(t, err)
	defer store.Close()

	err = store.AddDocuments(context.Background(), "lib", "", 0, sampleResult("https://x/y", "a"))
	assert.ErrorIs(t, err, domain.ErrReadOnly)

	_, err = store.RemoveVersion(context.Background(), "lib", "", false)
	assert.ErrorIs(t, err, domain.ErrReadOnly)
}

func TestStore_VersionLess(t *testing.T) {
	assert.True(t, versionLess("1.0.0", "2.0.0"))
	assert.True(t, versionLess("2.0.0", "10.0.0"))
	assert.True(t, versionLess("1.0.0", ""))
	assert.False(t, versionLess("", "99.0.0"))
	assert.True(t, versionLess("branch-x", "1.0.0"), "semver sorts above arbitrary strings")
}
