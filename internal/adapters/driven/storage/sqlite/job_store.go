package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
)

// jobStore implements driven.JobStore.
type jobStore struct {
	store *Store
}

var _ driven.JobStore = (*jobStore)(nil)

// jobColumns is the select list shared by job scans.
const jobColumns = "id, kind, library, version, source_url, options, status, pages_done, pages_max, current_url, error, created_at, updated_at"

// SaveJob inserts or updates a job record.
func (s *jobStore) SaveJob(ctx context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidInput
	}

	optsJSON := sql.NullString{}
	if job.Options != nil {
		j, err := marshalJSON(job.Options)
		if err != nil {
			return err
		}
		optsJSON = sql.NullString{String: j, Valid: true}
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO jobs (id, kind, library, version, source_url, options, status,
			pages_done, pages_max, current_url, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			pages_done = excluded.pages_done,
			pages_max = excluded.pages_max,
			current_url = excluded.current_url,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, job.ID, string(job.Kind), job.Library, job.Version, job.SourceURL, optsJSON,
		string(job.Status), job.Progress.PagesDone, job.Progress.PagesMax,
		job.Progress.CurrentURL, job.Error, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving job: %w", err)
	}
	return nil
}

// GetJob returns a job by id.
func (s *jobStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row.Scan)
	if err == domain.ErrNotFound {
		return nil, domain.ErrJobNotFound
	}
	return job, err
}

// ListJobs returns jobs matching the filter, newest first.
func (s *jobStore) ListJobs(ctx context.Context, filter driven.JobFilter) ([]domain.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs"
	var where []string
	var args []any

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ",")+")")
	}
	if filter.Library != "" {
		where = append(where, "library = ?")
		args = append(args, filter.Library)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// FindActive returns the queued or running job matching the work tuple.
func (s *jobStore) FindActive(ctx context.Context, kind domain.JobKind, library, version, sourceURL string) (*domain.Job, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE kind = ? AND library = ? AND version = ? AND source_url = ?
		  AND status IN ('queued', 'running')
		ORDER BY created_at LIMIT 1
	`, string(kind), library, version, sourceURL)

	job, err := scanJob(row.Scan)
	if err == domain.ErrNotFound {
		return nil, nil
	}
	return job, err
}

// ListUnfinished returns jobs left queued or running, oldest first, for
// adoption at startup.
func (s *jobStore) ListUnfinished(ctx context.Context) ([]domain.Job, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN ('queued', 'running')
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("querying unfinished jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// scanJob populates a job from a row scan.
func scanJob(scan func(dest ...any) error) (*domain.Job, error) {
	var job domain.Job
	var kind, status string
	var optsJSON sql.NullString
	var createdAt, updatedAt sql.NullTime

	if err := scan(&job.ID, &kind, &job.Library, &job.Version, &job.SourceURL,
		&optsJSON, &status, &job.Progress.PagesDone, &job.Progress.PagesMax,
		&job.Progress.CurrentURL, &job.Error, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	if optsJSON.Valid && optsJSON.String != "" {
		var opts domain.ScraperOptions
		if err := unmarshalJSON(optsJSON.String, &opts); err != nil {
			return nil, err
		}
		job.Options = &opts
	}
	if createdAt.Valid {
		job.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		job.UpdatedAt = updatedAt.Time
	}
	return &job, nil
}

// scanJobs scans multiple job rows.
func scanJobs(rows *sql.Rows) ([]domain.Job, error) {
	var jobs []domain.Job //nolint:prealloc // size unknown from query
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}
	return jobs, nil
}
