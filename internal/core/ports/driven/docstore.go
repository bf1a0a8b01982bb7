package driven

import (
	"context"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

// RemoveVersionResult reports what a cascade removal deleted.
type RemoveVersionResult struct {
	DocumentsDeleted int
	VersionDeleted   bool
	LibraryDeleted   bool
}

// DocumentStore persists libraries, versions, pages and chunks, and
// answers the retrieval queries of the hybrid store.
type DocumentStore interface {
	// ResolveVersionID inserts-or-gets the library and version rows.
	// A new version starts in not_indexed.
	ResolveVersionID(ctx context.Context, library, version string) (int64, error)

	// AddDocuments transactionally upserts the page and replaces its
	// chunk set with the scrape result's chunks in input order.
	AddDocuments(ctx context.Context, library, version string, depth int, result *domain.ScrapeResult) error

	// DeletePage removes a page and its chunks, documents first.
	DeletePage(ctx context.Context, pageID int64) error

	// RemoveVersion cascades documents, pages, the version and, when
	// removeLibraryIfEmpty is set and no versions remain, the library.
	RemoveVersion(ctx context.Context, library, version string, removeLibraryIfEmpty bool) (*RemoveVersionResult, error)

	// UpdateVersionStatus performs an atomic single-row status update.
	UpdateVersionStatus(ctx context.Context, versionID int64, status domain.VersionStatus, lastError string) error

	// UpdateVersionProgress persists progress counters.
	UpdateVersionProgress(ctx context.Context, versionID int64, pagesDone, pagesMax int) error

	// SetVersionSource persists the source URL and options snapshot.
	SetVersionSource(ctx context.Context, versionID int64, sourceURL string, opts *domain.ScraperOptions) error

	// GetVersion returns the version row for (library, version).
	GetVersion(ctx context.Context, library, version string) (*domain.Version, error)

	// ListPages returns the refresh seeds for a version.
	ListPages(ctx context.Context, versionID int64) ([]domain.RefreshSeed, error)

	// FindPageByURL returns the page row for (versionID, url).
	FindPageByURL(ctx context.Context, versionID int64, url string) (*domain.Page, error)

	// TouchPage refreshes a page's validators after a 304.
	TouchPage(ctx context.Context, pageID int64, etag, lastModified string) error

	// CheckDocumentExists reports whether any chunks exist for the version.
	CheckDocumentExists(ctx context.Context, library, version string) (bool, error)

	// FindChunksByURL returns a page's chunks ordered by sort_order.
	FindChunksByURL(ctx context.Context, library, version, url string) ([]domain.Chunk, error)

	// GetChunk returns a single chunk by id.
	GetChunk(ctx context.Context, chunkID int64) (*domain.Chunk, error)

	// SearchFTS runs the full-text query returning ranked hits,
	// structural-only chunks excluded.
	SearchFTS(ctx context.Context, library, version, query string, limit int) ([]domain.RankedHit, error)

	// SearchVector runs nearest-neighbour retrieval over the version's
	// embedded chunks, structural-only chunks excluded.
	SearchVector(ctx context.Context, library, version string, queryVec []float32, k int) ([]domain.RankedHit, error)

	// GetChunksByIDs hydrates chunks preserving the given id order and
	// returns each chunk's page URL and title alongside.
	GetChunksByIDs(ctx context.Context, ids []int64) ([]ChunkWithPage, error)

	// GetNeighbours fetches the contextual neighborhood of a hit chunk
	// under the given limits.
	GetNeighbours(ctx context.Context, chunkID int64, limits domain.AssemblyConfig) (*Neighbourhood, error)

	// QueryLibraryVersions returns every (library, version) with
	// aggregated statistics, semver-descending, empty version as latest.
	QueryLibraryVersions(ctx context.Context) ([]domain.VersionSummary, error)

	// ListLibraries returns the distinct library names.
	ListLibraries(ctx context.Context) ([]string, error)

	// Close releases the connection.
	Close() error
}

// ChunkWithPage is a hydrated chunk with its page context.
type ChunkWithPage struct {
	Chunk domain.Chunk
	URL   string
	Title string
}

// Neighbourhood is the contextual expansion of one hit chunk.
type Neighbourhood struct {
	// Parents are ancestor chunks, outermost first.
	Parents []domain.Chunk

	// Preceding are earlier siblings in ascending sort_order.
	Preceding []domain.Chunk

	// Hit is the matched chunk itself.
	Hit domain.Chunk

	// Subsequent are later siblings in ascending sort_order.
	Subsequent []domain.Chunk

	// Children are chunks one level deeper, in ascending sort_order.
	Children []domain.Chunk
}
