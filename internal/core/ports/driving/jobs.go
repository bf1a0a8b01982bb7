package driving

import (
	"context"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
)

// RefreshOptions narrows an enqueueRefresh call.
type RefreshOptions struct {
	// OnlyIncomplete skips versions whose last run completed.
	OnlyIncomplete bool
}

// JobService is the ingestion half of the service surface.
type JobService interface {
	// EnqueueScrape submits a scrape job. An equivalent queued or
	// running job is returned instead of a duplicate.
	EnqueueScrape(ctx context.Context, opts domain.ScraperOptions) (string, error)

	// EnqueueRefresh submits a refresh of an indexed version using its
	// persisted options snapshot.
	EnqueueRefresh(ctx context.Context, library, version string, opts RefreshOptions) (string, error)

	// EnqueueRemoveVersion submits a cascade removal.
	EnqueueRemoveVersion(ctx context.Context, library, version string) (string, error)

	// Cancel signals the job's workers to stop. Idempotent.
	Cancel(ctx context.Context, jobID string) error

	// WaitForJob blocks until the job reaches any terminal state,
	// including cancellation. It never blocks past ctx.
	WaitForJob(ctx context.Context, jobID string) (*domain.Job, error)

	// GetJob returns a job by id.
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)

	// ListJobs returns jobs matching the filter, newest first.
	ListJobs(ctx context.Context, filter driven.JobFilter) ([]domain.Job, error)

	// Subscribe returns the pipeline event stream and an unsubscribe
	// function.
	Subscribe() (<-chan domain.Event, func())
}
