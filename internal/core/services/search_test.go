package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docdex/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/docdex/internal/core/domain"
)

func TestFuseRRF_TieBreaksByAscendingID(t *testing.T) {
	// A: vec_rank=1, fts_rank=10; B: vec_rank=10, fts_rank=1. With equal
	// weights the RRF scores tie exactly; ascending id wins.
	var vecHits, ftsHits []domain.RankedHit
	const a, b = int64(7), int64(3)

	vecHits = append(vecHits, domain.RankedHit{ChunkID: a, Score: 0.99})
	for i := 0; i < 8; i++ {
		vecHits = append(vecHits, domain.RankedHit{ChunkID: int64(100 + i), Score: 0.5})
	}
	vecHits = append(vecHits, domain.RankedHit{ChunkID: b, Score: 0.1})

	ftsHits = append(ftsHits, domain.RankedHit{ChunkID: b, Score: 12})
	for i := 0; i < 8; i++ {
		ftsHits = append(ftsHits, domain.RankedHit{ChunkID: int64(200 + i), Score: 5})
	}
	ftsHits = append(ftsHits, domain.RankedHit{ChunkID: a, Score: 1})

	fused := fuseRRF(vecHits, ftsHits, 1, 1)
	require.GreaterOrEqual(t, len(fused), 2)

	// score(A) = 1/61 + 1/70 == score(B) = 1/70 + 1/61.
	assert.InDelta(t, 1.0/61+1.0/70, fused[0].Score, 1e-12)
	assert.Equal(t, b, fused[0].ChunkID, "tie broken by ascending id")
	assert.Equal(t, a, fused[1].ChunkID)
}

func TestFuseRRF_WeightMonotonicity(t *testing.T) {
	vecHits := []domain.RankedHit{{ChunkID: 1, Score: 0.9}, {ChunkID: 2, Score: 0.5}}
	ftsHits := []domain.RankedHit{{ChunkID: 2, Score: 10}, {ChunkID: 1, Score: 5}}

	rank := func(hits []domain.RankedHit, id int64) int {
		for i, h := range hits {
			if h.ChunkID == id {
				return i
			}
		}
		return -1
	}

	// Chunk 1 is vector-superior to chunk 2. Raising weight_vec can
	// never lower 1 relative to 2.
	base := fuseRRF(vecHits, ftsHits, 1, 1)
	baseGap := rank(base, 2) - rank(base, 1)
	for _, w := range []float64{1.5, 2, 5, 50} {
		boosted := fuseRRF(vecHits, ftsHits, w, 1)
		gap := rank(boosted, 2) - rank(boosted, 1)
		assert.GreaterOrEqual(t, gap, baseGap, "weight_vec=%v", w)
	}
}

func searchFixture(t *testing.T) (*SearchService, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := NewSearchService(store, nil, domain.DefaultConfig().Search, domain.DefaultConfig().Assembly)
	return svc, store
}

func TestSearchService_FTSOnlyPath(t *testing.T) {
	svc, store := searchFixture(t)
	ctx := context.Background()

	require.NoError(t, store.AddDocuments(ctx, "lib", "1.0.0", 0, &domain.ScrapeResult{
		URL: "https://x/hooks", Title: "Hooks Guide", ContentType: "text/markdown",
		Chunks: []domain.Chunk{
			{Content: "# Hooks", Section: domain.SectionMeta{Level: 1, Path: domain.SectionPath{"Hooks"}}, Types: domain.ChunkTypeContent | domain.ChunkTypeHeading},
			{Content: "useState manages local state.", Section: domain.SectionMeta{Level: 1, Path: domain.SectionPath{"Hooks"}}, Types: domain.ChunkTypeContent},
			{Content: "useEffect runs side effects.", Section: domain.SectionMeta{Level: 1, Path: domain.SectionPath{"Hooks"}}, Types: domain.ChunkTypeContent},
		},
	}))

	results, err := svc.Search(ctx, "lib", "1.0.0", "useState", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Equal(t, "https://x/hooks", top.URL)
	assert.Equal(t, "Hooks Guide", top.Title)
	assert.Greater(t, top.Score, 0.0)
	// Assembly pulled sibling context around the hit.
	assert.Contains(t, top.Content, "useState manages local state.")
	assert.Contains(t, top.Content, "useEffect runs side effects.")
	assert.Equal(t, domain.SectionPath{"Hooks"}, top.Section.Path)
}

func TestSearchService_EmptyQuery(t *testing.T) {
	svc, _ := searchFixture(t)
	results, err := svc.Search(context.Background(), "lib", "", "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchService_ListVersionsFiltered(t *testing.T) {
	svc, store := searchFixture(t)
	ctx := context.Background()

	_, err := store.ResolveVersionID(ctx, "alpha", "1.0.0")
	require.NoError(t, err)
	_, err = store.ResolveVersionID(ctx, "beta", "2.0.0")
	require.NoError(t, err)

	all, err := svc.ListVersions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	alphaOnly, err := svc.ListVersions(ctx, "Alpha")
	require.NoError(t, err)
	require.Len(t, alphaOnly, 1)
	assert.Equal(t, "alpha", alphaOnly[0].Library)

	libs, err := svc.ListLibraries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, libs)
}
