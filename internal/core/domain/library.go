package domain

import "time"

// Library is a named collection of documentation versions.
// Names are lowercased on ingest; (library, version) is unique.
type Library struct {
	// ID is the database identifier.
	ID int64

	// Name is the lowercase library name.
	Name string

	// CreatedAt is when the library row was first created.
	CreatedAt time.Time
}

// VersionStatus describes the indexing lifecycle of a version.
type VersionStatus string

// Version lifecycle states.
const (
	VersionNotIndexed VersionStatus = "not_indexed"
	VersionQueued     VersionStatus = "queued"
	VersionRunning    VersionStatus = "running"
	VersionUpdating   VersionStatus = "updating"
	VersionCompleted  VersionStatus = "completed"
	VersionFailed     VersionStatus = "failed"
	VersionCancelled  VersionStatus = "cancelled"
)

// IsTerminal reports whether the status is a resting state.
func (s VersionStatus) IsTerminal() bool {
	switch s {
	case VersionCompleted, VersionFailed, VersionCancelled, VersionNotIndexed:
		return true
	}
	return false
}

// IsActive reports whether work is in flight for the version.
func (s VersionStatus) IsActive() bool {
	return s == VersionQueued || s == VersionRunning || s == VersionUpdating
}

// Version is a named collection of pages within a library.
// The empty string names the unversioned default collection.
type Version struct {
	// ID is the database identifier.
	ID int64

	// LibraryID links to the owning Library.
	LibraryID int64

	// Name is the canonical version string; empty means unversioned.
	Name string

	// Status is the current indexing state.
	Status VersionStatus

	// PagesDone counts completed pages for the active or last run.
	PagesDone int

	// PagesMax is the page budget for the active or last run.
	PagesMax int

	// LastError holds the terminal error message of a failed run.
	LastError string

	// SourceURL is the URL the version was scraped from, if any.
	SourceURL string

	// ScraperOptions is the persisted options snapshot enabling
	// reproducible re-indexing. Nil if never scraped.
	ScraperOptions *ScraperOptions

	// CreatedAt is when the version row was first created.
	CreatedAt time.Time

	// UpdatedAt is when the version row last changed.
	UpdatedAt time.Time
}

// VersionSummary is the aggregated listing row returned by
// queryLibraryVersions: a version with its document statistics.
type VersionSummary struct {
	Library string
	Version Version

	// DocumentCount is the number of chunks stored for the version.
	DocumentCount int

	// PageCount is the number of distinct indexed URLs.
	PageCount int

	// IndexedAt is the earliest page creation time, zero if no pages.
	IndexedAt time.Time
}
