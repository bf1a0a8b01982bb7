package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
)

// ResolveVersionID inserts-or-gets the library and version rows.
// Library names are lowercased; a fresh version starts in not_indexed.
func (s *Store) ResolveVersionID(ctx context.Context, library, version string) (int64, error) {
	if library == "" {
		return 0, fmt.Errorf("%w: library name is required", domain.ErrInvalidInput)
	}
	library = strings.ToLower(library)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	id, err := resolveVersionIDTx(ctx, tx, library, version)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return id, nil
}

// resolveVersionIDTx performs the insert-or-get inside a transaction.
func resolveVersionIDTx(ctx context.Context, tx *sql.Tx, library, version string) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO libraries (name) VALUES (?) ON CONFLICT(name) DO NOTHING", library); err != nil {
		return 0, fmt.Errorf("inserting library: %w", err)
	}

	var libraryID int64
	if err := tx.QueryRowContext(ctx,
		"SELECT id FROM libraries WHERE name = ?", library).Scan(&libraryID); err != nil {
		return 0, fmt.Errorf("selecting library: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO versions (library_id, name) VALUES (?, ?)
		ON CONFLICT(library_id, name) DO NOTHING
	`, libraryID, version); err != nil {
		return 0, fmt.Errorf("inserting version: %w", err)
	}

	var versionID int64
	if err := tx.QueryRowContext(ctx,
		"SELECT id FROM versions WHERE library_id = ? AND name = ?", libraryID, version).Scan(&versionID); err != nil {
		return 0, fmt.Errorf("selecting version: %w", err)
	}
	return versionID, nil
}

// AddDocuments transactionally upserts the page and replaces its chunks
// with the scrape result's chunks in input order.
func (s *Store) AddDocuments(ctx context.Context, library, version string, depth int, result *domain.ScrapeResult) error {
	if s.readOnly {
		return domain.ErrReadOnly
	}
	if result == nil || result.URL == "" {
		return fmt.Errorf("%w: scrape result without url", domain.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	versionID, err := resolveVersionIDTx(ctx, tx, strings.ToLower(library), version)
	if err != nil {
		return err
	}

	// Upsert the page: metadata refreshes, identity is preserved.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pages (version_id, url, title, content_type, etag, last_modified, depth)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version_id, url) DO UPDATE SET
			title = excluded.title,
			content_type = excluded.content_type,
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			depth = excluded.depth
	`, versionID, result.URL, result.Title, result.ContentType,
		result.ETag, result.LastModified, depth); err != nil {
		return fmt.Errorf("upserting page: %w", err)
	}

	var pageID int64
	if err := tx.QueryRowContext(ctx,
		"SELECT id FROM pages WHERE version_id = ? AND url = ?", versionID, result.URL).Scan(&pageID); err != nil {
		return fmt.Errorf("selecting page: %w", err)
	}

	// Replace the chunk set: FTS mirror first, then rows.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM documents_fts WHERE rowid IN (SELECT id FROM documents WHERE page_id = ?)", pageID); err != nil {
		return fmt.Errorf("clearing fts mirror: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE page_id = ?", pageID); err != nil {
		return fmt.Errorf("clearing documents: %w", err)
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (page_id, content, sort_order, section_level, section_path, section_path_key, types, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing document insert: %w", err)
	}
	defer insert.Close()

	ftsInsert, err := tx.PrepareContext(ctx, `
		INSERT INTO documents_fts (rowid, title, url, path, content)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing fts insert: %w", err)
	}
	defer ftsInsert.Close()

	for i, chunk := range result.Chunks {
		pathJSON, err := marshalJSON(chunk.Section.Path)
		if err != nil {
			return err
		}
		typesJSON, err := marshalJSON(chunk.Types)
		if err != nil {
			return err
		}

		res, err := insert.ExecContext(ctx, pageID, chunk.Content, i,
			chunk.Section.Level, pathJSON, chunk.Section.Path.Key(), typesJSON,
			float32SliceToBytes(chunk.Embedding))
		if err != nil {
			return fmt.Errorf("inserting document %d: %w", i, err)
		}
		docID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("document rowid: %w", err)
		}

		if _, err := ftsInsert.ExecContext(ctx, docID, result.Title, result.URL,
			strings.Join(chunk.Section.Path, " / "), chunk.Content); err != nil {
			return fmt.Errorf("inserting fts row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// DeletePage removes a page and its chunks, documents first.
func (s *Store) DeletePage(ctx context.Context, pageID int64) error {
	if s.readOnly {
		return domain.ErrReadOnly
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deletePageTx(ctx, tx, pageID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// deletePageTx removes one page inside a transaction, FK order.
func deletePageTx(ctx context.Context, tx *sql.Tx, pageID int64) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM documents_fts WHERE rowid IN (SELECT id FROM documents WHERE page_id = ?)", pageID); err != nil {
		return fmt.Errorf("clearing fts mirror: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE page_id = ?", pageID); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM pages WHERE id = ?", pageID); err != nil {
		return fmt.Errorf("deleting page: %w", err)
	}
	return nil
}

// RemoveVersion cascades documents, pages, the version and, when asked
// and empty, the library.
func (s *Store) RemoveVersion(ctx context.Context, library, version string, removeLibraryIfEmpty bool) (*driven.RemoveVersionResult, error) {
	if s.readOnly {
		return nil, domain.ErrReadOnly
	}
	library = strings.ToLower(library)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var libraryID, versionID int64
	err = tx.QueryRowContext(ctx, `
		SELECT l.id, v.id FROM libraries l
		JOIN versions v ON v.library_id = l.id
		WHERE l.name = ? AND v.name = ?
	`, library, version).Scan(&libraryID, &versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("selecting version: %w", err)
	}

	result := &driven.RemoveVersionResult{}

	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents WHERE page_id IN (SELECT id FROM pages WHERE version_id = ?)
	`, versionID).Scan(&result.DocumentsDeleted); err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM documents_fts WHERE rowid IN (
			SELECT d.id FROM documents d
			JOIN pages p ON d.page_id = p.id
			WHERE p.version_id = ?
		)
	`, versionID); err != nil {
		return nil, fmt.Errorf("clearing fts mirror: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM documents WHERE page_id IN (SELECT id FROM pages WHERE version_id = ?)", versionID); err != nil {
		return nil, fmt.Errorf("deleting documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM pages WHERE version_id = ?", versionID); err != nil {
		return nil, fmt.Errorf("deleting pages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM versions WHERE id = ?", versionID); err != nil {
		return nil, fmt.Errorf("deleting version: %w", err)
	}
	result.VersionDeleted = true

	if removeLibraryIfEmpty {
		var remaining int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM versions WHERE library_id = ?", libraryID).Scan(&remaining); err != nil {
			return nil, fmt.Errorf("counting versions: %w", err)
		}
		if remaining == 0 {
			if _, err := tx.ExecContext(ctx, "DELETE FROM libraries WHERE id = ?", libraryID); err != nil {
				return nil, fmt.Errorf("deleting library: %w", err)
			}
			result.LibraryDeleted = true
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return result, nil
}

// UpdateVersionStatus performs an atomic single-row status update.
func (s *Store) UpdateVersionStatus(ctx context.Context, versionID int64, status domain.VersionStatus, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE versions SET status = ?, last_error = ?, updated_at = ? WHERE id = ?
	`, string(status), lastError, time.Now().UTC(), versionID)
	if err != nil {
		return fmt.Errorf("updating version status: %w", err)
	}
	return nil
}

// UpdateVersionProgress persists progress counters.
func (s *Store) UpdateVersionProgress(ctx context.Context, versionID int64, pagesDone, pagesMax int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE versions SET pages_done = ?, pages_max = ?, updated_at = ? WHERE id = ?
	`, pagesDone, pagesMax, time.Now().UTC(), versionID)
	if err != nil {
		return fmt.Errorf("updating version progress: %w", err)
	}
	return nil
}

// SetVersionSource persists the source URL and options snapshot.
func (s *Store) SetVersionSource(ctx context.Context, versionID int64, sourceURL string, opts *domain.ScraperOptions) error {
	optsJSON := sql.NullString{}
	if opts != nil {
		j, err := marshalJSON(opts)
		if err != nil {
			return err
		}
		optsJSON = sql.NullString{String: j, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE versions SET source_url = ?, scraper_options = ?, updated_at = ? WHERE id = ?
	`, sourceURL, optsJSON, time.Now().UTC(), versionID)
	if err != nil {
		return fmt.Errorf("updating version source: %w", err)
	}
	return nil
}

// GetVersion returns the version row for (library, version).
func (s *Store) GetVersion(ctx context.Context, library, version string) (*domain.Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT v.id, v.library_id, v.name, v.status, v.pages_done, v.pages_max,
		       v.last_error, v.source_url, v.scraper_options, v.created_at, v.updated_at
		FROM versions v
		JOIN libraries l ON v.library_id = l.id
		WHERE l.name = ? AND v.name = ?
	`, strings.ToLower(library), version)

	return scanVersion(row)
}

// scanVersion populates a version from a row.
func scanVersion(row *sql.Row) (*domain.Version, error) {
	var v domain.Version
	var status string
	var optsJSON sql.NullString
	var createdAt, updatedAt sql.NullTime

	if err := row.Scan(&v.ID, &v.LibraryID, &v.Name, &status, &v.PagesDone, &v.PagesMax,
		&v.LastError, &v.SourceURL, &optsJSON, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning version: %w", err)
	}

	v.Status = domain.VersionStatus(status)
	if optsJSON.Valid && optsJSON.String != "" {
		var opts domain.ScraperOptions
		if err := unmarshalJSON(optsJSON.String, &opts); err != nil {
			return nil, err
		}
		v.ScraperOptions = &opts
	}
	if createdAt.Valid {
		v.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		v.UpdatedAt = updatedAt.Time
	}
	return &v, nil
}

// ListPages returns the refresh seeds for a version.
func (s *Store) ListPages(ctx context.Context, versionID int64) ([]domain.RefreshSeed, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, depth, etag, last_modified FROM pages WHERE version_id = ? ORDER BY depth, id
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("querying pages: %w", err)
	}
	defer rows.Close()

	var seeds []domain.RefreshSeed //nolint:prealloc // size unknown from query
	for rows.Next() {
		var seed domain.RefreshSeed
		if err := rows.Scan(&seed.PageID, &seed.URL, &seed.Depth, &seed.ETag, &seed.LastModified); err != nil {
			return nil, fmt.Errorf("scanning page: %w", err)
		}
		seeds = append(seeds, seed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pages: %w", err)
	}
	return seeds, nil
}

// FindPageByURL returns the page row for (versionID, url).
func (s *Store) FindPageByURL(ctx context.Context, versionID int64, url string) (*domain.Page, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, version_id, url, title, content_type, etag, last_modified, depth, created_at
		FROM pages WHERE version_id = ? AND url = ?
	`, versionID, url)

	var p domain.Page
	var createdAt sql.NullTime
	if err := row.Scan(&p.ID, &p.VersionID, &p.URL, &p.Title, &p.ContentType,
		&p.ETag, &p.LastModified, &p.Depth, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning page: %w", err)
	}
	if createdAt.Valid {
		p.CreatedAt = createdAt.Time
	}
	return &p, nil
}

// TouchPage refreshes a page's validators after a 304.
func (s *Store) TouchPage(ctx context.Context, pageID int64, etag, lastModified string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE pages SET etag = ?, last_modified = ? WHERE id = ?", etag, lastModified, pageID)
	if err != nil {
		return fmt.Errorf("touching page: %w", err)
	}
	return nil
}

// CheckDocumentExists reports whether any chunks exist for the version.
func (s *Store) CheckDocumentExists(ctx context.Context, library, version string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents d
		JOIN pages p ON d.page_id = p.id
		JOIN versions v ON p.version_id = v.id
		JOIN libraries l ON v.library_id = l.id
		WHERE l.name = ? AND v.name = ?
	`, strings.ToLower(library), version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking documents: %w", err)
	}
	return count > 0, nil
}

// FindChunksByURL returns a page's chunks ordered by sort_order.
func (s *Store) FindChunksByURL(ctx context.Context, library, version, url string) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.page_id, d.content, d.sort_order, d.section_level, d.section_path, d.types, d.embedding
		FROM documents d
		JOIN pages p ON d.page_id = p.id
		JOIN versions v ON p.version_id = v.id
		JOIN libraries l ON v.library_id = l.id
		WHERE l.name = ? AND v.name = ? AND p.url = ?
		ORDER BY d.sort_order
	`, strings.ToLower(library), version, url)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
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
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// GetChunk returns a single chunk.
func (s *Store) GetChunk(ctx context.Context, chunkID int64) (*domain.Chunk, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+chunkColumns+" FROM documents WHERE id = ?", chunkID)
	return scanChunkFields(row.Scan)
}

// QueryLibraryVersions returns every (library, version) with aggregated
// statistics, ordered semver-descending per library with the empty
// version first.
func (s *Store) QueryLibraryVersions(ctx context.Context) ([]domain.VersionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.name, v.id, v.library_id, v.name, v.status, v.pages_done, v.pages_max,
		       v.last_error, v.source_url, v.created_at, v.updated_at,
		       COUNT(d.id) AS doc_count,
		       COUNT(DISTINCT p.id) AS page_count,
		       MIN(p.created_at) AS indexed_at
		FROM libraries l
		JOIN versions v ON v.library_id = l.id
		LEFT JOIN pages p ON p.version_id = v.id
		LEFT JOIN documents d ON d.page_id = p.id
		GROUP BY v.id
		ORDER BY l.name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying library versions: %w", err)
	}
	defer rows.Close()

	var summaries []domain.VersionSummary //nolint:prealloc // size unknown from query
	for rows.Next() {
		var sum domain.VersionSummary
		var status string
		var createdAt, updatedAt sql.NullTime
		// MIN() loses the column's DATETIME type, so the driver hands
		// back text; parse it here.
		var indexedAt sql.NullString
		if err := rows.Scan(&sum.Library, &sum.Version.ID, &sum.Version.LibraryID,
			&sum.Version.Name, &status, &sum.Version.PagesDone, &sum.Version.PagesMax,
			&sum.Version.LastError, &sum.Version.SourceURL, &createdAt, &updatedAt,
			&sum.DocumentCount, &sum.PageCount, &indexedAt); err != nil {
			return nil, fmt.Errorf("scanning version summary: %w", err)
		}
		sum.Version.Status = domain.VersionStatus(status)
		if createdAt.Valid {
			sum.Version.CreatedAt = createdAt.Time
		}
		if updatedAt.Valid {
			sum.Version.UpdatedAt = updatedAt.Time
		}
		if indexedAt.Valid {
			for _, layout := range []string{time.DateTime, time.RFC3339Nano} {
				if t, err := time.Parse(layout, indexedAt.String); err == nil {
					sum.IndexedAt = t
					break
				}
			}
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating version summaries: %w", err)
	}

	sortVersionSummaries(summaries)
	return summaries, nil
}

// sortVersionSummaries orders by library name ascending, then version
// descending with semver awareness; the empty version sorts as latest.
func sortVersionSummaries(summaries []domain.VersionSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Library != summaries[j].Library {
			return summaries[i].Library < summaries[j].Library
		}
		return versionLess(summaries[j].Version.Name, summaries[i].Version.Name)
	})
}

// versionLess compares version names ascending: the empty string is
// greatest (latest), semver versions compare numerically, everything
// else lexically below semver.
func versionLess(a, b string) bool {
	if a == b {
		return false
	}
	if a == "" {
		return false
	}
	if b == "" {
		return true
	}
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		return va.LessThan(vb)
	case errA == nil:
		return false // Semver sorts above arbitrary strings.
	case errB == nil:
		return true
	default:
		return a < b
	}
}

// ListLibraries returns the distinct library names.
func (s *Store) ListLibraries(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM libraries ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying libraries: %w", err)
	}
	defer rows.Close()

	var names []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning library: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating libraries: %w", err)
	}
	return names, nil
}
