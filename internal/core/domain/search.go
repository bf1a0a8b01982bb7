package domain

// SearchOptions configures a hybrid search query.
type SearchOptions struct {
	// Limit is the maximum number of results. Defaults to 10.
	Limit int
}

// SearchResult is a single assembled search hit: the matched chunk merged
// with its contextual neighborhood, preserving hit ordering.
type SearchResult struct {
	// ChunkID is the primary matched chunk.
	ChunkID int64

	// URL and Title identify the source page.
	URL   string
	Title string

	// Content is the assembled text: parents, preceding siblings, the
	// hit, subsequent siblings and children merged in document order.
	Content string

	// Score is the fused relevance score (RRF, or -bm25 in FTS-only mode).
	Score float64

	// Section is the hit chunk's hierarchy metadata.
	Section SectionMeta
}

// RankedHit is an intermediate per-index result before fusion.
type RankedHit struct {
	// ChunkID is the matched chunk.
	ChunkID int64

	// Score is the index-native score (BM25 or cosine similarity).
	Score float64
}
