package driven

import (
	"context"

	"github.com/custodia-labs/docdex/internal/core/domain"
)

// JobFilter narrows job listings.
type JobFilter struct {
	// Statuses filters to the given states; empty means all.
	Statuses []domain.JobStatus

	// Library filters to one library; empty means all.
	Library string
}

// JobStore persists pipeline job records durably.
type JobStore interface {
	// SaveJob inserts or updates a job record.
	SaveJob(ctx context.Context, job *domain.Job) error

	// GetJob returns a job by id.
	GetJob(ctx context.Context, id string) (*domain.Job, error)

	// ListJobs returns jobs matching the filter, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error)

	// FindActive returns the queued or running job matching the work
	// tuple, or nil. Used for enqueue deduplication.
	FindActive(ctx context.Context, kind domain.JobKind, library, version, sourceURL string) (*domain.Job, error)

	// ListUnfinished returns jobs left queued or running, for adoption
	// at startup.
	ListUnfinished(ctx context.Context) ([]domain.Job, error)
}
