package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
)

func TestEscapeFTSQuery(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
	}{
		{
			name: "words and phrase and unbalanced quote",
			in:   `foo "bar baz" qux"unbalanced`,
			want: `("foo bar baz qux unbalanced") OR ("foo" OR "bar baz" OR "qux" OR "unbalanced")`,
		},
		{
			name: "single word",
			in:   "select",
			want: `("select") OR ("select")`,
		},
		{
			name: "operators are neutralised",
			in:   `NEAR(a AND b) OR c*`,
			want: `("NEAR(a AND b) OR c*") OR ("NEAR(a" OR "AND" OR "b)" OR "OR" OR "c*")`,
		},
		{
			name: "empty",
			in:   "   ",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeFTSQuery(tt.in))
		})
	}
}

func TestSearchFTS_InjectionSafety(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	require.NoError(t, store.AddDocuments(ctx, "lib", "", 0, sampleResult("https://x/y", "plain content")))

	// None of these may produce an FTS parse error.
	hostile := []string{
		`"`, `""`, `"""`, `a"b`, `NEAR(`, `AND OR NOT`, `col:val`,
		`* ^ { } [ ]`, `-x +y`, "\x00weird", `unbalanced "quote here`,
	}
	for _, q := range hostile {
		_, err := store.SearchFTS(ctx, "lib", "", q, 10)
		assert.NoError(t, err, "query %q", q)
	}
}

func TestSearchFTS_RanksTitleAboveBody(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	titled := sampleResult("https://x/hooks-guide", "Everything about state management.")
	titled.Title = "React Hooks"
	require.NoError(t, store.AddDocuments(ctx, "lib", "", 0, titled))

	body := sampleResult("https://x/other", "This page mentions hooks in passing, inside the body text only.")
	body.Title = "Unrelated"
	require.NoError(t, store.AddDocuments(ctx, "lib", "", 0, body))

	hits, err := store.SearchFTS(ctx, "lib", "", "hooks", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	first, err := store.GetChunksByIDs(ctx, []int64{hits[0].ChunkID})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "React Hooks", first[0].Title)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestSearchFTS_ExcludesStructuralOnly(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	result := &domain.ScrapeResult{
		URL: "https://x/code", Title: "Code", ContentType: "text/plain",
		Chunks: []domain.Chunk{
			{Content: "func scaffold()", Types: domain.ChunkTypeStructural | domain.ChunkTypeCode},
			{Content: "real scaffold documentation", Types: domain.ChunkTypeContent},
		},
	}
	require.NoError(t, store.AddDocuments(ctx, "lib", "", 0, result))

	hits, err := store.SearchFTS(ctx, "lib", "", "scaffold", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	got, err := store.GetChunksByIDs(ctx, []int64{hits[0].ChunkID})
	require.NoError(t, err)
	assert.Equal(t, "real scaffold documentation", got[0].Chunk.Content)
}

func TestSearchFTS_ScopedToVersion(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddDocuments(ctx, "lib", "1.0.0", 0, sampleResult("https://x/a", "versioned gadget docs")))
	require.NoError(t, store.AddDocuments(ctx, "lib", "2.0.0", 0, sampleResult("https://x/b", "versioned gadget docs")))

	hits, err := store.SearchFTS(ctx, "lib", "1.0.0", "gadget", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func vec(dim int, fill float32, hot int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = fill
	}
	if hot >= 0 && hot < dim {
		v[hot] = 1
	}
	return v
}

func TestSearchVector_RanksByCosine(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	result := &domain.ScrapeResult{
		URL: "https://x/v", Title: "V", ContentType: "text/plain",
		Chunks: []domain.Chunk{
			{Content: "north", Types: domain.ChunkTypeContent, Embedding: vec(8, 0, 0)},
			{Content: "east", Types: domain.ChunkTypeContent, Embedding: vec(8, 0, 1)},
			{Content: "mixed", Types: domain.ChunkTypeContent, Embedding: vec(8, 0.3, 0)},
		},
	}
	require.NoError(t, store.AddDocuments(ctx, "lib", "", 0, result))

	hits, err := store.SearchVector(ctx, "lib", "", vec(8, 0, 0), 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	got, err := store.GetChunksByIDs(ctx, []int64{hits[0].ChunkID})
	require.NoError(t, err)
	assert.Equal(t, "north", got[0].Chunk.Content)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestSearchVector_SkipsChunksWithoutEmbedding(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	result := &domain.ScrapeResult{
		URL: "https://x/v", Title: "V", ContentType: "text/plain",
		Chunks: []domain.Chunk{
			{Content: "no vector", Types: domain.ChunkTypeContent},
			{Content: "with vector", Types: domain.ChunkTypeContent, Embedding: vec(4, 0, 2)},
		},
	}
	require.NoError(t, store.AddDocuments(ctx, "lib", "", 0, result))

	hits, err := store.SearchVector(ctx, "lib", "", vec(4, 0, 2), 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestGetChunksByIDs_PreservesOrder(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddDocuments(ctx, "lib", "", 0, sampleResult("https://x/y", "a", "b", "c")))
	chunks, err := store.FindChunksByURL(ctx, "lib", "", "https://x/y")
	require.NoError(t, err)

	ids := []int64{chunks[2].ID, chunks[0].ID}
	got, err := store.GetChunksByIDs(ctx, ids)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Chunk.Content)
	assert.Equal(t, "a", got[1].Chunk.Content)
}

func hierarchicalResult() *domain.ScrapeResult {
	path := func(parts ...string) domain.SectionPath { return parts }
	return &domain.ScrapeResult{
		URL: "https://x/doc", Title: "Doc", ContentType: "text/markdown",
		Chunks: []domain.Chunk{
			{Content: "# Guide intro", Section: domain.SectionMeta{Level: 1, Path: path("Guide")}, Types: domain.ChunkTypeContent | domain.ChunkTypeHeading},
			{Content: "guide overview text", Section: domain.SectionMeta{Level: 1, Path: path("Guide")}, Types: domain.ChunkTypeContent},
			{Content: "## Install heading", Section: domain.SectionMeta{Level: 2, Path: path("Guide", "Install")}, Types: domain.ChunkTypeContent | domain.ChunkTypeHeading},
			{Content: "install step one", Section: domain.SectionMeta{Level: 2, Path: path("Guide", "Install")}, Types: domain.ChunkTypeContent},
			{Content: "install step two", Section: domain.SectionMeta{Level: 2, Path: path("Guide", "Install")}, Types: domain.ChunkTypeContent},
			{Content: "install step three", Section: domain.SectionMeta{Level: 2, Path: path("Guide", "Install")}, Types: domain.ChunkTypeContent},
			{Content: "### Linux details", Section: domain.SectionMeta{Level: 3, Path: path("Guide", "Install", "Linux")}, Types: domain.ChunkTypeContent},
			{Content: "### Mac details", Section: domain.SectionMeta{Level: 3, Path: path("Guide", "Install", "Mac")}, Types: domain.ChunkTypeContent},
		},
	}
}

func TestGetNeighbours(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddDocuments(ctx, "lib", "", 0, hierarchicalResult()))
	chunks, err := store.FindChunksByURL(ctx, "lib", "", "https://x/doc")
	require.NoError(t, err)
	require.Len(t, chunks, 8)

	// Hit "install step two" (index 4).
	limits := domain.AssemblyConfig{
		MaxChunkDistance:        5,
		MaxParentChainDepth:     3,
		ChildLimit:              3,
		PrecedingSiblingsLimit:  1,
		SubsequentSiblingsLimit: 2,
	}
	n, err := store.GetNeighbours(ctx, chunks[4].ID, limits)
	require.NoError(t, err)

	assert.Equal(t, "install step two", n.Hit.Content)

	// Parent chain walks to the enclosing Guide chunk.
	require.NotEmpty(t, n.Parents)
	assert.Equal(t, "guide overview text", n.Parents[len(n.Parents)-1].Content)

	require.Len(t, n.Preceding, 1)
	assert.Equal(t, "install step one", n.Preceding[0].Content)

	require.Len(t, n.Subsequent, 1)
	assert.Equal(t, "install step three", n.Subsequent[0].Content)

	// Children are the level-deeper chunks after the hit.
	require.Len(t, n.Children, 2)
	assert.Equal(t, "### Linux details", n.Children[0].Content)
}

func TestGetNeighbours_LimitsRespected(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddDocuments(ctx, "lib", "", 0, hierarchicalResult()))
	chunks, err := store.FindChunksByURL(ctx, "lib", "", "https://x/doc")
	require.NoError(t, err)

	n, err := store.GetNeighbours(ctx, chunks[4].ID, domain.AssemblyConfig{})
	require.NoError(t, err)
	assert.Empty(t, n.Preceding)
	assert.Empty(t, n.Subsequent)
	assert.Empty(t, n.Children)
	assert.Empty(t, n.Parents)
}

func TestJobStore_RoundTrip(t *testing.T) {
	store := testStore(t)
	jobs := store.JobStore()
	ctx := context.Background()

	job := &domain.Job{
		ID: "job-1", Kind: domain.JobScrape, Library: "lib", Version: "1.0.0",
		SourceURL: "https://x/docs", Status: domain.JobQueued,
		Options: &domain.ScraperOptions{URL: "https://x/docs", Library: "lib", MaxPages: 10},
	}
	require.NoError(t, jobs.SaveJob(ctx, job))

	got, err := jobs.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, got.Status)
	require.NotNil(t, got.Options)
	assert.Equal(t, 10, got.Options.MaxPages)

	// Dedup lookup finds the queued job.
	active, err := jobs.FindActive(ctx, domain.JobScrape, "lib", "1.0.0", "https://x/docs")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "job-1", active.ID)

	// Terminal jobs stop matching.
	job.Status = domain.JobCompleted
	require.NoError(t, jobs.SaveJob(ctx, job))
	active, err = jobs.FindActive(ctx, domain.JobScrape, "lib", "1.0.0", "https://x/docs")
	require.NoError(t, err)
	assert.Nil(t, active)

	_, err = jobs.GetJob(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestJobStore_ListAndUnfinished(t *testing.T) {
	store := testStore(t)
	jobs := store.JobStore()
	ctx := context.Background()

	for i, status := range []domain.JobStatus{domain.JobQueued, domain.JobRunning, domain.JobCompleted} {
		require.NoError(t, jobs.SaveJob(ctx, &domain.Job{
			ID: fmt.Sprintf("job-%d", i), Kind: domain.JobScrape,
			Library: "lib", Version: fmt.Sprintf("%d.0.0", i), Status: status,
		}))
	}

	unfinished, err := jobs.ListUnfinished(ctx)
	require.NoError(t, err)
	assert.Len(t, unfinished, 2)

	completed, err := jobs.ListJobs(ctx, driven.JobFilter{Statuses: []domain.JobStatus{domain.JobCompleted}})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "job-2", completed[0].ID)

	all, err := jobs.ListJobs(ctx, driven.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
