package driving

import (
	"context"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

// SearchService is the query half of the service surface.
type SearchService interface {
	// Search runs the hybrid query and returns assembled results with
	// score and hierarchy metadata.
	Search(ctx context.Context, library, version, query string, limit int) ([]domain.SearchResult, error)

	// ListLibraries returns the distinct library names.
	ListLibraries(ctx context.Context) ([]string, error)

	// ListVersions returns version summaries for a library, or all
	// libraries when library is empty.
	ListVersions(ctx context.Context, library string) ([]domain.VersionSummary, error)
}
