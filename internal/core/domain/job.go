package domain

import "time"

// JobKind identifies what a pipeline job does.
type JobKind string

// Job kinds.
const (
	JobScrape        JobKind = "scrape"
	JobRefresh       JobKind = "refresh"
	JobRemoveVersion JobKind = "remove-version"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

// Job states. A running refresh reports its version as updating; the job
// row itself stays in running.
const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status is final.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving to next is a legal step.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobQueued:
		return next == JobRunning || next == JobCancelled || next == JobFailed
	case JobRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// JobProgress is the persisted progress snapshot of a job.
type JobProgress struct {
	// PagesDone counts completed pages.
	PagesDone int `json:"pagesDone"`

	// PagesMax is the page budget.
	PagesMax int `json:"pagesMax"`

	// CurrentURL is the last completed page, informational.
	CurrentURL string `json:"currentUrl,omitempty"`
}

// Job is a durable pipeline job record.
type Job struct {
	// ID is the job identifier (UUID).
	ID string

	// Kind is the job type.
	Kind JobKind

	// Library and Version identify the target collection.
	Library string
	Version string

	// SourceURL is the scrape entry point, empty for removals.
	SourceURL string

	// Options is the persisted options snapshot.
	Options *ScraperOptions

	// Status is the current lifecycle state.
	Status JobStatus

	// Progress is the last persisted progress snapshot.
	Progress JobProgress

	// Error is the terminal error message for failed jobs.
	Error string

	// CreatedAt and UpdatedAt are bookkeeping timestamps.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Matches reports whether the job targets the same work as the given
// tuple. Used for enqueue deduplication while queued or running.
func (j *Job) Matches(kind JobKind, library, version, sourceURL string) bool {
	return j.Kind == kind && j.Library == library && j.Version == version && j.SourceURL == sourceURL
}
