package sqlite

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
)

// BM25 column weights: the title dominates, the URL and the hierarchy
// path weigh equally below it, the body contributes modestly.
const bm25Weights = "10.0, 5.0, 5.0, 1.0"

// SearchFTS runs the full-text query returning ranked hits. Structural
// scaffolding is excluded.
func (s *Store) SearchFTS(ctx context.Context, library, version, query string, limit int) ([]domain.RankedHit, error) {
	ftsQuery := EscapeFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, bm25(documents_fts, `+bm25Weights+`) AS rank
		FROM documents_fts
		JOIN documents d ON d.id = documents_fts.rowid
		JOIN pages p ON d.page_id = p.id
		JOIN versions v ON p.version_id = v.id
		JOIN libraries l ON v.library_id = l.id
		WHERE documents_fts MATCH ?
		  AND l.name = ? AND v.name = ?
		  AND `+notStructuralOnly+`
		ORDER BY rank
		LIMIT ?
	`, ftsQuery, strings.ToLower(library), version, limit)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	var hits []domain.RankedHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var hit domain.RankedHit
		var rank float64
		if err := rows.Scan(&hit.ChunkID, &rank); err != nil {
			return nil, fmt.Errorf("scanning fts hit: %w", err)
		}
		// FTS5 bm25() is negative for better matches.
		hit.Score = -rank
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fts hits: %w", err)
	}
	return hits, nil
}

// EscapeFTSQuery turns arbitrary user input into a safe FTS5 expression.
// Balanced quotes form phrase tokens via a quote-toggle state machine;
// every token is double-quoted with internal quotes doubled. The emitted
// expression is ("<exact-joined>") OR ("t1" OR ... OR "tn"), which is
// parseable for any input.
func EscapeFTSQuery(query string) string {
	tokens := tokenizeQuery(query)
	if len(tokens) == 0 {
		return ""
	}

	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = quoteFTSToken(tok)
	}

	exact := quoteFTSToken(strings.Join(tokens, " "))
	return "(" + exact + ") OR (" + strings.Join(quoted, " OR ") + ")"
}

// tokenizeQuery splits input on whitespace outside quotes; balanced
// quote pairs capture phrase tokens. An unbalanced trailing quote opens
// a phrase that simply runs to the end of the input.
func tokenizeQuery(query string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range query {
		switch {
		case r == 0:
			// NUL would terminate the expression early inside SQLite.
			continue
		case r == '"':
			flush()
			inQuote = !inQuote
		case !inQuote && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// quoteFTSToken double-quotes a token, doubling embedded quotes.
func quoteFTSToken(tok string) string {
	return `"` + strings.ReplaceAll(tok, `"`, `""`) + `"`
}

// SearchVector runs nearest-neighbour retrieval over the version's
// embedded chunks: brute-force cosine over the stored vectors, which is
// exact and fast enough for a single-process embedded store.
func (s *Store) SearchVector(ctx context.Context, library, version string, queryVec []float32, k int) ([]domain.RankedHit, error) {
	if len(queryVec) == 0 || k <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.embedding
		FROM documents d
		JOIN pages p ON d.page_id = p.id
		JOIN versions v ON p.version_id = v.id
		JOIN libraries l ON v.library_id = l.id
		WHERE l.name = ? AND v.name = ?
		  AND d.embedding IS NOT NULL
		  AND `+notStructuralOnly+`
	`, strings.ToLower(library), version)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer rows.Close()

	var hits []domain.RankedHit
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector row: %w", err)
		}
		vec := bytesToFloat32Slice(blob)
		if len(vec) != len(queryVec) {
			continue
		}
		hits = append(hits, domain.RankedHit{ChunkID: id, Score: cosineSimilarity(queryVec, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vector rows: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// cosineSimilarity computes the cosine of the angle between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// GetChunksByIDs hydrates chunks with their page context, preserving the
// given id order.
func (s *Store) GetChunksByIDs(ctx context.Context, ids []int64) ([]driven.ChunkWithPage, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.page_id, d.content, d.sort_order, d.section_level, d.section_path, d.types, d.embedding,
		       p.url, p.title
		FROM documents d
		JOIN pages p ON d.page_id = p.id
		WHERE d.id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("hydrating chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]driven.ChunkWithPage, len(ids))
	for rows.Next() {
		var cwp driven.ChunkWithPage
		chunk, err := scanChunkWithPage(rows.Scan, &cwp)
		if err != nil {
			return nil, err
		}
		cwp.Chunk = *chunk
		byID[chunk.ID] = cwp
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	ordered := make([]driven.ChunkWithPage, 0, len(ids))
	for _, id := range ids {
		if cwp, ok := byID[id]; ok {
			ordered = append(ordered, cwp)
		}
	}
	return ordered, nil
}

// scanChunkWithPage scans the chunk columns plus page url and title.
func scanChunkWithPage(scan func(dest ...any) error, cwp *driven.ChunkWithPage) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var pathJSON, typesJSON string
	var embedding []byte

	if err := scan(&chunk.ID, &chunk.PageID, &chunk.Content, &chunk.SortOrder,
		&chunk.Section.Level, &pathJSON, &typesJSON, &embedding,
		&cwp.URL, &cwp.Title); err != nil {
		return nil, fmt.Errorf("scanning chunk with page: %w", err)
	}

	if err := unmarshalJSON(pathJSON, &chunk.Section.Path); err != nil {
		return nil, err
	}
	var names []string
	if err := unmarshalJSON(typesJSON, &names); err != nil {
		return nil, err
	}
	types, err := domain.ParseChunkTypes(names)
	if err != nil {
		return nil, err
	}
	chunk.Types = types
	chunk.Embedding = bytesToFloat32Slice(embedding)
	return &chunk, nil
}

// GetNeighbours fetches the contextual neighborhood of a hit chunk under
// the assembly limits: the parent chain, nearby siblings and children.
func (s *Store) GetNeighbours(ctx context.Context, chunkID int64, limits domain.AssemblyConfig) (*driven.Neighbourhood, error) {
	hit, err := s.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}

	n := &driven.Neighbourhood{Hit: *hit}
	pathKey := hit.Section.Path.Key()

	// Parent chain: nearest preceding chunk at each ancestor path, walking up.
	ancestor := hit.Section.Path.Parent()
	for depth := 0; depth < limits.MaxParentChainDepth && len(ancestor) > 0; depth++ {
		parent, err := s.chunkAt(ctx, hit.PageID, ancestor.Key(), hit.SortOrder, -1, 1)
		if err != nil {
			return nil, err
		}
		if len(parent) > 0 {
			n.Parents = append([]domain.Chunk{parent[0]}, n.Parents...)
		}
		ancestor = ancestor.Parent()
	}

	// Siblings share the exact path.
	preceding, err := s.chunkAt(ctx, hit.PageID, pathKey, hit.SortOrder, -1, limits.PrecedingSiblingsLimit)
	if err != nil {
		return nil, err
	}
	// chunkAt returns descending for the preceding direction; restore
	// document order.
	for i, j := 0, len(preceding)-1; i < j; i, j = i+1, j-1 {
		preceding[i], preceding[j] = preceding[j], preceding[i]
	}
	n.Preceding = preceding

	n.Subsequent, err = s.chunkAt(ctx, hit.PageID, pathKey, hit.SortOrder, 1, limits.SubsequentSiblingsLimit)
	if err != nil {
		return nil, err
	}

	children, err := s.childChunks(ctx, hit, limits)
	if err != nil {
		return nil, err
	}
	n.Children = children

	return n, nil
}

// chunkAt fetches chunks on the same page with the given path key,
// before (dir < 0) or after (dir > 0) the sort order, up to limit.
func (s *Store) chunkAt(ctx context.Context, pageID int64, pathKey string, sortOrder, dir, limit int) ([]domain.Chunk, error) {
	if limit <= 0 {
		return nil, nil
	}

	cmp, order := "<", "DESC"
	if dir > 0 {
		cmp, order = ">", "ASC"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chunkColumns+` FROM documents
		WHERE page_id = ? AND section_path_key = ? AND sort_order `+cmp+` ?
		ORDER BY sort_order `+order+`
		LIMIT ?
	`, pageID, pathKey, sortOrder, limit)
	if err != nil {
		return nil, fmt.Errorf("querying neighbours: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunkFields(rows.Scan)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating neighbours: %w", err)
	}
	return chunks, nil
}

// childChunks fetches chunks exactly one path level deeper than the hit,
// after it, within the distance budget.
func (s *Store) childChunks(ctx context.Context, hit *domain.Chunk, limits domain.AssemblyConfig) ([]domain.Chunk, error) {
	if limits.ChildLimit <= 0 {
		return nil, nil
	}

	prefix := hit.Section.Path.Key()
	pattern := prefix + "\x1f%"
	if prefix == "" {
		pattern = "%"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chunkColumns+` FROM documents
		WHERE page_id = ? AND sort_order > ? AND section_path_key LIKE ?
		ORDER BY sort_order ASC
	`, hit.PageID, hit.SortOrder, pattern)
	if err != nil {
		return nil, fmt.Errorf("querying children: %w", err)
	}
	defer rows.Close()

	var children []domain.Chunk
	for rows.Next() {
		chunk, err := scanChunkFields(rows.Scan)
		if err != nil {
			return nil, err
		}
		// Exactly one level deeper, and not drifting past the distance budget.
		if len(chunk.Section.Path) != len(hit.Section.Path)+1 {
			continue
		}
		if limits.MaxChunkDistance > 0 && chunk.SortOrder-hit.SortOrder > limits.MaxChunkDistance+len(children) {
			break
		}
		children = append(children, *chunk)
		if len(children) >= limits.ChildLimit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating children: %w", err)
	}
	return children, nil
}
