package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
	"github.com/custodia-labs/docdex/internal/core/ports/driving"
	"github.com/custodia-labs/docdex/internal/logger"
)

// rrfK is the rank-stabilising constant in Reciprocal Rank Fusion.
const rrfK = 60.0

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// SearchService answers hybrid queries: FTS and vector retrieval fused
// by Reciprocal Rank Fusion, followed by contextual neighborhood
// assembly. Without an embedding provider it degrades to FTS-only.
type SearchService struct {
	store    driven.DocumentStore
	embedder *EmbeddingCoordinator
	search   domain.SearchConfig
	assembly domain.AssemblyConfig
}

// NewSearchService creates the search service. The embedder is optional.
func NewSearchService(store driven.DocumentStore, embedder *EmbeddingCoordinator, search domain.SearchConfig, assembly domain.AssemblyConfig) *SearchService {
	if search.OverfetchFactor <= 0 {
		search.OverfetchFactor = 2
	}
	if search.VectorMultiplier <= 0 {
		search.VectorMultiplier = 5
	}
	return &SearchService{store: store, embedder: embedder, search: search, assembly: assembly}
}

// Search runs the hybrid query and returns assembled results.
func (s *SearchService) Search(ctx context.Context, library, version, query string, limit int) ([]domain.SearchResult, error) {
	logger.Section("Search Execution")
	logger.Debug("query: %q library: %s version: %s", query, library, version)

	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.SearchResult{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	var fused []domain.RankedHit
	if s.embedder.Enabled() {
		hits, err := s.hybrid(ctx, library, version, query, limit)
		if err != nil {
			return nil, err
		}
		fused = hits
	} else {
		hits, err := s.store.SearchFTS(ctx, library, version, query, limit)
		if err != nil {
			return nil, fmt.Errorf("fts search: %w", err)
		}
		fused = hits
	}

	if len(fused) > limit {
		fused = fused[:limit]
	}
	return s.assemble(ctx, fused)
}

// hybrid runs both retrieval paths and fuses their rankings.
func (s *SearchService) hybrid(ctx context.Context, library, version, query string, limit int) ([]domain.RankedHit, error) {
	ftsK := limit * s.search.OverfetchFactor
	vecK := ftsK * s.search.VectorMultiplier

	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		// Embedding trouble at query time degrades to FTS rather than
		// failing the search.
		if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
			logger.Warn("query embedding failed, falling back to fts: %v", err)
		}
		return s.store.SearchFTS(ctx, library, version, query, limit)
	}

	vecHits, err := s.store.SearchVector(ctx, library, version, queryVec, vecK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	ftsHits, err := s.store.SearchFTS(ctx, library, version, query, ftsK)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	logger.Debug("vector hits: %d, fts hits: %d", len(vecHits), len(ftsHits))

	return fuseRRF(vecHits, ftsHits, s.search.WeightVec, s.search.WeightFts), nil
}

// fuseRRF assigns 1-based ranks per index and scores each candidate by
// sum(weight_i / (60 + rank_i)). Ties break by ascending chunk id so
// results are deterministic.
func fuseRRF(vecHits, ftsHits []domain.RankedHit, weightVec, weightFts float64) []domain.RankedHit {
	scores := make(map[int64]float64)

	for i, hit := range vecHits {
		scores[hit.ChunkID] += weightVec / (rrfK + float64(i+1))
	}
	for i, hit := range ftsHits {
		scores[hit.ChunkID] += weightFts / (rrfK + float64(i+1))
	}

	fused := make([]domain.RankedHit, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, domain.RankedHit{ChunkID: id, Score: score})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ChunkID < fused[j].ChunkID
	})
	return fused
}

// assemble expands each hit into its contextual neighborhood and merges
// the pieces into one result row, preserving hit ordering.
func (s *SearchService) assemble(ctx context.Context, hits []domain.RankedHit) ([]domain.SearchResult, error) {
	ids := make([]int64, len(hits))
	scores := make(map[int64]float64, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ChunkID
		scores[hit.ChunkID] = hit.Score
	}

	hydrated, err := s.store.GetChunksByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrating hits: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(hydrated))
	for _, cwp := range hydrated {
		neighbourhood, err := s.store.GetNeighbours(ctx, cwp.Chunk.ID, s.assembly)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("assembling neighbourhood: %w", err)
		}
		results = append(results, domain.SearchResult{
			ChunkID: cwp.Chunk.ID,
			URL:     cwp.URL,
			Title:   cwp.Title,
			Content: mergeNeighbourhood(neighbourhood),
			Score:   scores[cwp.Chunk.ID],
			Section: cwp.Chunk.Section,
		})
	}
	return results, nil
}

// mergeNeighbourhood stitches parents, siblings, the hit and children
// back together in document order.
func mergeNeighbourhood(n *driven.Neighbourhood) string {
	ordered := make([]domain.Chunk, 0, len(n.Parents)+len(n.Preceding)+1+len(n.Subsequent)+len(n.Children))
	ordered = append(ordered, n.Parents...)
	ordered = append(ordered, n.Preceding...)
	ordered = append(ordered, n.Hit)
	ordered = append(ordered, n.Subsequent...)
	ordered = append(ordered, n.Children...)

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SortOrder < ordered[j].SortOrder
	})

	var b strings.Builder
	for i, chunk := range ordered {
		if i > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
		b.WriteString(chunk.Content)
	}
	return b.String()
}

// ListLibraries returns the distinct library names.
func (s *SearchService) ListLibraries(ctx context.Context) ([]string, error) {
	return s.store.ListLibraries(ctx)
}

// ListVersions returns version summaries, filtered to one library when
// given.
func (s *SearchService) ListVersions(ctx context.Context, library string) ([]domain.VersionSummary, error) {
	summaries, err := s.store.QueryLibraryVersions(ctx)
	if err != nil {
		return nil, err
	}
	if library == "" {
		return summaries, nil
	}

	library = strings.ToLower(library)
	filtered := summaries[:0]
	for _, sum := range summaries {
		if sum.Library == library {
			filtered = append(filtered, sum)
		}
	}
	return filtered, nil
}
