package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
	"github.com/custodia-labs/docdex/internal/core/ports/driving"
	"github.com/custodia-labs/docdex/internal/logger"
)

// interruptedMessage marks scrapes found running after a crash.
const interruptedMessage = "interrupted by shutdown; re-run to resume"

// StrategyResolver picks the scraper strategy for an input URL.
// Implemented by the strategy registry.
type StrategyResolver interface {
	Resolve(rawURL string) (driven.ScraperStrategy, error)
}

// Ensure PipelineManager implements the interface.
var _ driving.JobService = (*PipelineManager)(nil)

// PipelineManager is the durable job scheduler: it persists job records,
// deduplicates equivalent work, recovers interrupted jobs at startup,
// runs jobs under a concurrency ceiling and emits progress events.
type PipelineManager struct {
	store    driven.DocumentStore
	jobs     driven.JobStore
	resolver StrategyResolver
	bus      driven.EventBus
	embedder *EmbeddingCoordinator
	cfg      domain.PipelineConfig
	defaults domain.ScraperConfig

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wake    chan struct{}
	runCtx  context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewPipelineManager wires the scheduler.
func NewPipelineManager(
	store driven.DocumentStore,
	jobs driven.JobStore,
	resolver StrategyResolver,
	bus driven.EventBus,
	embedder *EmbeddingCoordinator,
	cfg domain.PipelineConfig,
	defaults domain.ScraperConfig,
) *PipelineManager {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &PipelineManager{
		store:    store,
		jobs:     jobs,
		resolver: resolver,
		bus:      bus,
		embedder: embedder,
		cfg:      cfg,
		defaults: defaults,
		cancels:  make(map[string]context.CancelFunc),
		wake:     make(chan struct{}, 1),
	}
}

// Start adopts interrupted jobs and launches the worker pool. It returns
// immediately; Stop joins the workers.
func (m *PipelineManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.runCtx, m.stop = context.WithCancel(ctx)
	m.mu.Unlock()

	if err := m.recover(m.runCtx); err != nil {
		return fmt.Errorf("recovering jobs: %w", err)
	}

	for i := 0; i < m.cfg.Concurrency; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.workerLoop()
		}()
	}
	m.kick()
	return nil
}

// Stop cancels running jobs and joins the workers.
func (m *PipelineManager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	stop := m.stop
	m.mu.Unlock()

	stop()
	m.wg.Wait()
}

// recover adopts jobs left queued or running by a previous process.
// Interrupted refreshes re-queue; interrupted scrapes re-queue only when
// configured, surfacing as failed otherwise.
func (m *PipelineManager) recover(ctx context.Context) error {
	unfinished, err := m.jobs.ListUnfinished(ctx)
	if err != nil {
		return err
	}

	for i := range unfinished {
		job := &unfinished[i]
		if job.Status != domain.JobRunning {
			continue
		}
		switch {
		case job.Kind == domain.JobRefresh, m.cfg.ResumeInterrupted:
			logger.Info("re-queueing interrupted %s job %s", job.Kind, job.ID)
			job.Status = domain.JobQueued
		default:
			logger.Warn("marking interrupted scrape %s failed", job.ID)
			job.Status = domain.JobFailed
			job.Error = interruptedMessage
		}
		if err := m.jobs.SaveJob(ctx, job); err != nil {
			return err
		}
		m.publishStatus(job)
	}
	return nil
}

// EnqueueScrape submits a scrape job, deduplicating against equivalent
// queued or running work.
func (m *PipelineManager) EnqueueScrape(ctx context.Context, opts domain.ScraperOptions) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	m.applyDefaults(&opts)
	opts.Library = strings.ToLower(opts.Library)

	return m.enqueue(ctx, &domain.Job{
		Kind:      domain.JobScrape,
		Library:   opts.Library,
		Version:   opts.Version,
		SourceURL: opts.URL,
		Options:   &opts,
		Progress:  domain.JobProgress{PagesMax: opts.MaxPages},
	})
}

// EnqueueRefresh submits a refresh using the version's persisted options
// snapshot.
func (m *PipelineManager) EnqueueRefresh(ctx context.Context, library, version string, refreshOpts driving.RefreshOptions) (string, error) {
	library = strings.ToLower(library)

	v, err := m.store.GetVersion(ctx, library, version)
	if err != nil {
		return "", fmt.Errorf("loading version: %w", err)
	}
	if refreshOpts.OnlyIncomplete && v.Status == domain.VersionCompleted {
		return "", fmt.Errorf("%w: version is already complete", domain.ErrAlreadyExists)
	}

	opts := v.ScraperOptions
	if opts == nil {
		if v.SourceURL == "" {
			return "", fmt.Errorf("%w: version has no source url to refresh from", domain.ErrInvalidInput)
		}
		opts = &domain.ScraperOptions{URL: v.SourceURL, Library: library, Version: version}
	}
	snapshot := *opts
	snapshot.IsRefresh = true
	m.applyDefaults(&snapshot)

	return m.enqueue(ctx, &domain.Job{
		Kind:      domain.JobRefresh,
		Library:   library,
		Version:   version,
		SourceURL: snapshot.URL,
		Options:   &snapshot,
		Progress:  domain.JobProgress{PagesMax: snapshot.MaxPages},
	})
}

// EnqueueRemoveVersion submits a cascade removal.
func (m *PipelineManager) EnqueueRemoveVersion(ctx context.Context, library, version string) (string, error) {
	return m.enqueue(ctx, &domain.Job{
		Kind:    domain.JobRemoveVersion,
		Library: strings.ToLower(library),
		Version: version,
	})
}

// enqueue persists the job unless an equivalent one is active.
func (m *PipelineManager) enqueue(ctx context.Context, job *domain.Job) (string, error) {
	existing, err := m.jobs.FindActive(ctx, job.Kind, job.Library, job.Version, job.SourceURL)
	if err != nil {
		return "", err
	}
	if existing != nil {
		logger.Debug("job deduplicated onto %s", existing.ID)
		return existing.ID, nil
	}

	job.ID = uuid.New().String()
	job.Status = domain.JobQueued
	if err := m.jobs.SaveJob(ctx, job); err != nil {
		return "", err
	}

	m.publish(domain.Event{Type: domain.EventJobListChange, JobID: job.ID, Status: job.Status})
	m.kick()
	return job.ID, nil
}

// Cancel signals the job's workers to stop. Queued jobs terminate
// immediately; running jobs abort their in-flight fetches.
func (m *PipelineManager) Cancel(ctx context.Context, jobID string) error {
	m.mu.Lock()
	cancel, running := m.cancels[jobID]
	m.mu.Unlock()

	if running {
		cancel()
		return nil
	}

	job, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}
	job.Status = domain.JobCancelled
	if err := m.jobs.SaveJob(ctx, job); err != nil {
		return err
	}
	m.publishStatus(job)
	m.publish(domain.Event{Type: domain.EventJobListChange, JobID: job.ID, Status: job.Status})
	return nil
}

// WaitForJob blocks until the job reaches any terminal state, including
// cancellation. It never outlives ctx.
func (m *PipelineManager) WaitForJob(ctx context.Context, jobID string) (*domain.Job, error) {
	eventCh, unsubscribe := m.bus.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		job, err := m.jobs.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-eventCh:
		case <-ticker.C:
		}
	}
}

// GetJob returns a job by id.
func (m *PipelineManager) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return m.jobs.GetJob(ctx, jobID)
}

// ListJobs returns jobs matching the filter.
func (m *PipelineManager) ListJobs(ctx context.Context, filter driven.JobFilter) ([]domain.Job, error) {
	return m.jobs.ListJobs(ctx, filter)
}

// Subscribe exposes the event stream.
func (m *PipelineManager) Subscribe() (<-chan domain.Event, func()) {
	return m.bus.Subscribe()
}

// kick nudges an idle worker.
func (m *PipelineManager) kick() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// workerLoop claims queued jobs until the manager stops.
func (m *PipelineManager) workerLoop() {
	for {
		job, ok := m.claimNext()
		if ok {
			m.runJob(job)
			m.kick()
			continue
		}

		select {
		case <-m.runCtx.Done():
			return
		case <-m.wake:
		case <-time.After(time.Second):
		}
	}
}

// claimNext atomically moves the oldest queued job to running.
func (m *PipelineManager) claimNext() (*domain.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runCtx.Err() != nil {
		return nil, false
	}

	queued, err := m.jobs.ListJobs(m.runCtx, driven.JobFilter{Statuses: []domain.JobStatus{domain.JobQueued}})
	if err != nil || len(queued) == 0 {
		return nil, false
	}
	// ListJobs is newest first; claim the oldest.
	job := queued[len(queued)-1]

	job.Status = domain.JobRunning
	if err := m.jobs.SaveJob(m.runCtx, &job); err != nil {
		return nil, false
	}
	return &job, true
}

// runJob executes one claimed job to a terminal state.
func (m *PipelineManager) runJob(job *domain.Job) {
	jobCtx, jobCancel := context.WithCancel(m.runCtx)
	m.mu.Lock()
	m.cancels[job.ID] = jobCancel
	m.mu.Unlock()

	defer func() {
		jobCancel()
		m.mu.Lock()
		delete(m.cancels, job.ID)
		m.mu.Unlock()
	}()

	m.publishStatus(job)
	logger.Info("job %s (%s %s@%s) started", job.ID, job.Kind, job.Library, job.Version)

	var err error
	switch job.Kind {
	case domain.JobRemoveVersion:
		err = m.runRemove(jobCtx, job)
	default:
		err = m.runScrape(jobCtx, job)
	}

	switch {
	case err == nil:
		job.Status = domain.JobCompleted
		job.Error = ""
	case errors.Is(err, context.Canceled):
		job.Status = domain.JobCancelled
		job.Error = ""
	default:
		job.Status = domain.JobFailed
		job.Error = err.Error()
	}

	if saveErr := m.jobs.SaveJob(context.Background(), job); saveErr != nil {
		logger.Warn("persisting terminal job %s: %v", job.ID, saveErr)
	}
	m.publishStatus(job)
	m.publish(domain.Event{Type: domain.EventJobListChange, JobID: job.ID, Status: job.Status})
	logger.Info("job %s finished: %s", job.ID, job.Status)
}

// runRemove executes a remove-version job.
func (m *PipelineManager) runRemove(ctx context.Context, job *domain.Job) error {
	result, err := m.store.RemoveVersion(ctx, job.Library, job.Version, true)
	if err != nil {
		return err
	}
	logger.Info("removed %s@%s: %d documents, library deleted: %t",
		job.Library, job.Version, result.DocumentsDeleted, result.LibraryDeleted)
	return nil
}

// runScrape executes a scrape or refresh job end to end.
func (m *PipelineManager) runScrape(ctx context.Context, job *domain.Job) error {
	opts := job.Options
	if opts == nil {
		return fmt.Errorf("%w: job has no options snapshot", domain.ErrInvalidInput)
	}
	// IsRefresh is not part of the persisted snapshot; the job kind is
	// authoritative after a reload.
	opts.IsRefresh = job.Kind == domain.JobRefresh

	versionID, err := m.store.ResolveVersionID(ctx, job.Library, job.Version)
	if err != nil {
		return err
	}

	versionStatus := domain.VersionRunning
	if job.Kind == domain.JobRefresh {
		versionStatus = domain.VersionUpdating
	}
	if err := m.store.UpdateVersionStatus(ctx, versionID, versionStatus, ""); err != nil {
		return err
	}
	if err := m.store.SetVersionSource(ctx, versionID, opts.URL, opts); err != nil {
		return err
	}

	var seeds []domain.RefreshSeed
	if opts.IsRefresh {
		seeds, err = m.store.ListPages(ctx, versionID)
		if err != nil {
			return err
		}
	}

	strategy, err := m.resolver.Resolve(opts.URL)
	if err != nil {
		return m.finishVersion(versionID, domain.VersionFailed, err)
	}

	runErr := strategy.Scrape(ctx, opts, seeds, m.progressFunc(job, versionID))

	switch {
	case runErr == nil:
		return m.finishVersion(versionID, domain.VersionCompleted, nil)
	case errors.Is(runErr, context.Canceled):
		_ = m.finishVersion(versionID, domain.VersionCancelled, nil)
		return runErr
	default:
		_ = m.finishVersion(versionID, domain.VersionFailed, runErr)
		return runErr
	}
}

// finishVersion records the version's terminal status.
func (m *PipelineManager) finishVersion(versionID int64, status domain.VersionStatus, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	// Terminal bookkeeping survives job-context cancellation.
	if err := m.store.UpdateVersionStatus(context.Background(), versionID, status, msg); err != nil {
		return err
	}
	return cause
}

// progressFunc builds the per-page callback: it persists pipeline
// output, advances counters and emits progress events.
func (m *PipelineManager) progressFunc(job *domain.Job, versionID int64) driven.ProgressFunc {
	return func(ctx context.Context, update driven.ProgressUpdate) error {
		switch {
		case update.Deleted:
			if err := m.store.DeletePage(ctx, update.PageID); err != nil {
				return err
			}
			logger.Info("removed vanished page %s", update.URL)
		case update.NotModified:
			if err := m.store.TouchPage(ctx, update.PageID, update.ETag, update.LastModified); err != nil {
				return err
			}
		case update.Result != nil:
			if m.embedder.Enabled() {
				if err := m.embedder.EmbedChunks(ctx, update.Result); err != nil {
					return fmt.Errorf("embedding %s: %w", update.URL, err)
				}
			}
			if err := m.store.AddDocuments(ctx, job.Library, job.Version, update.Depth, update.Result); err != nil {
				return fmt.Errorf("storing %s: %w", update.URL, err)
			}
		case update.Err != nil:
			logger.Warn("page %s: %v", update.URL, update.Err)
		}

		job.Progress.PagesDone = update.PagesDone
		job.Progress.PagesMax = update.PagesMax
		job.Progress.CurrentURL = update.URL
		if err := m.jobs.SaveJob(ctx, job); err != nil {
			return err
		}
		if err := m.store.UpdateVersionProgress(ctx, versionID, update.PagesDone, update.PagesMax); err != nil {
			return err
		}

		m.publish(domain.Event{
			Type:     domain.EventJobProgress,
			JobID:    job.ID,
			Status:   job.Status,
			Progress: job.Progress,
		})
		return nil
	}
}

// applyDefaults fills unset crawl limits from configuration.
func (m *PipelineManager) applyDefaults(opts *domain.ScraperOptions) {
	if opts.MaxPages <= 0 {
		opts.MaxPages = m.defaults.MaxPages
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = m.defaults.MaxDepth
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = m.defaults.MaxConcurrency
	}
	if opts.Scope == "" {
		opts.Scope = domain.ScopeSubpages
	}
}

// publish sends an event with the current timestamp.
func (m *PipelineManager) publish(event domain.Event) {
	event.At = time.Now()
	m.bus.Publish(event)
}

// publishStatus emits a JOB_STATUS event for the job's current state.
func (m *PipelineManager) publishStatus(job *domain.Job) {
	m.publish(domain.Event{
		Type:     domain.EventJobStatus,
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
	})
}
