// Package worker runs the review execution loop: reserve a work item, fetch
// the pull request, analyze it, and persist the outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pullcheck/pullcheck/config"
	"github.com/pullcheck/pullcheck/internal/core"
	"github.com/pullcheck/pullcheck/internal/domain/model"
	apperrors "github.com/pullcheck/pullcheck/internal/errors"
)

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Store    core.ResultStore
	Queue    core.JobQueue
	Fetcher  core.ArtifactFetcher
	Analyzer core.Analyzer
	Config   config.WorkerConfig
	Logger   *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Runner executes review jobs pulled from the queue. Execution failures
// (fetch, analysis) terminate the review and complete the delivery;
// infrastructure failures fail the delivery so the queue retries it, and the
// last such failure moves the job record to failed.
type Runner struct {
	store    core.ResultStore
	queue    core.JobQueue
	fetcher  core.ArtifactFetcher
	analyzer core.Analyzer
	cfg      config.WorkerConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunner creates a worker runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Store == nil {
		return nil, errors.New("result store is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("job queue is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("artifact fetcher is required")
	}
	if opts.Analyzer == nil {
		return nil, errors.New("analyzer is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	cfg := opts.Config
	cfg.Sanitize()

	return &Runner{
		store:    opts.Store,
		queue:    opts.Queue,
		fetcher:  opts.Fetcher,
		analyzer: opts.Analyzer,
		cfg:      cfg,
		logger:   logger.With("component", "worker"),
		now:      now,
	}, nil
}

// Run starts the worker pool and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting review workers",
		"concurrency", r.cfg.Concurrency,
		"lease", r.cfg.Lease,
		"poll_interval", r.cfg.PollInterval,
	)

	group, gctx := errgroup.WithContext(ctx)
	for range r.cfg.Concurrency {
		group.Go(func() error { return r.workerLoop(gctx) })
	}
	return group.Wait()
}

func (r *Runner) leaseSeconds() int {
	return int(r.cfg.Lease / time.Second)
}

func (r *Runner) workerLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		job, err := r.queue.ReserveNext(ctx, r.leaseSeconds())
		switch {
		case err == nil:
			r.processJob(ctx, job)
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.sleep(ctx, r.cfg.PollInterval) {
				return nil
			}
		case ctx.Err() != nil:
			return nil
		default:
			r.logger.ErrorContext(ctx, "failed to reserve next job", "error", err)
			return err
		}
	}
	return ctx.Err()
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// processJob runs one delivery end to end. Every exit path resolves the queue
// row: Complete for terminal outcomes, Fail for infrastructure faults.
func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	item, err := job.WorkItem()
	if err != nil {
		// Undecodable payloads can never succeed; park the delivery.
		r.logger.ErrorContext(ctx, "work item payload is malformed", "queue_id", job.ID, "error", err)
		r.failDelivery(ctx, job.ID, fmt.Sprintf("malformed payload: %v", err), nil)
		return
	}
	if err := item.Validate(); err != nil {
		r.logger.ErrorContext(ctx, "work item is invalid", "queue_id", job.ID, "job_id", item.JobID, "error", err)
		r.failDelivery(ctx, job.ID, fmt.Sprintf("invalid work item: %v", err), nil)
		return
	}

	logger := r.logger.With("queue_id", job.ID, "job_id", item.JobID, "pull", item.Ref().String())
	logger.InfoContext(ctx, "processing review job")

	stopHB := r.startHeartbeat(ctx, job.ID)
	defer stopHB()

	rec, err := r.store.GetRecord(ctx, item.JobID)
	if err != nil {
		r.failDelivery(ctx, job.ID, fmt.Sprintf("load job record: %v", err), model.NewJobRecord(item.JobID, item.Ref(), r.now()))
		return
	}
	if rec != nil && rec.Status.Terminal() {
		// Redelivery of an already-resolved job. The record never moves
		// backwards; just settle the queue row.
		logger.InfoContext(ctx, "job already resolved, completing redelivery", "status", rec.Status)
		r.completeDelivery(ctx, job.ID)
		return
	}
	if rec == nil {
		// Record expired or was never written; rebuild it so polling works
		// for the remainder of its TTL.
		rec = model.NewJobRecord(item.JobID, item.Ref(), r.now())
	}

	if err := rec.MarkProcessing(r.now()); err != nil {
		logger.WarnContext(ctx, "cannot mark record processing", "error", err)
		r.completeDelivery(ctx, job.ID)
		return
	}
	if err := r.store.SaveRecord(ctx, rec); err != nil {
		r.failDelivery(ctx, job.ID, fmt.Sprintf("save processing record: %v", err), rec)
		return
	}

	payload, execErr := r.executeReview(ctx, item)
	if execErr != nil {
		// Fetch and analysis failures are terminal for the review: record
		// the failure and settle the delivery so it is never retried.
		logger.WarnContext(ctx, "review failed", "error", execErr)
		if err := rec.MarkFailed(execErr.Error(), r.now()); err != nil {
			logger.ErrorContext(ctx, "cannot mark record failed", "error", err)
			r.completeDelivery(ctx, job.ID)
			return
		}
		if err := r.store.SaveRecord(ctx, rec); err != nil {
			r.failDelivery(ctx, job.ID, fmt.Sprintf("save failed record: %v", err), rec)
			return
		}
		r.completeDelivery(ctx, job.ID)
		return
	}

	// Cache write precedes the terminal record write: a completed record
	// must never point at an absent cache entry.
	if err := r.store.SaveReview(ctx, item.Ref(), payload); err != nil {
		r.failDelivery(ctx, job.ID, fmt.Sprintf("save review: %v", err), rec)
		return
	}
	if err := rec.MarkCompleted(payload, r.now()); err != nil {
		logger.ErrorContext(ctx, "cannot mark record completed", "error", err)
		r.completeDelivery(ctx, job.ID)
		return
	}
	if err := r.store.SaveRecord(ctx, rec); err != nil {
		r.failDelivery(ctx, job.ID, fmt.Sprintf("save completed record: %v", err), rec)
		return
	}

	logger.InfoContext(ctx, "review completed",
		"files", payload.Summary.TotalFiles,
		"issues", payload.Summary.TotalIssues,
		"critical", payload.Summary.CriticalIssues,
	)
	r.completeDelivery(ctx, job.ID)
}

// executeReview fetches and analyzes the pull request. Errors returned here
// are review failures, not delivery failures.
func (r *Runner) executeReview(ctx context.Context, item model.WorkItem) (*model.ReviewPayload, error) {
	fetchCtx, cancelFetch := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancelFetch()

	details, err := r.fetcher.FetchPull(fetchCtx, item.Ref(), item.Token)
	if err != nil {
		if !apperrors.IsFetch(err) {
			err = apperrors.Fetch("fetch pull request", err)
		}
		return nil, err
	}

	analyzeCtx, cancelAnalyze := context.WithTimeout(ctx, r.cfg.AnalyzeTimeout)
	defer cancelAnalyze()

	payload, err := r.analyzer.Analyze(analyzeCtx, details)
	if err != nil {
		if !apperrors.IsAnalysis(err) {
			err = apperrors.Analysis("analyze pull request", err)
		}
		return nil, err
	}
	if payload == nil {
		return nil, apperrors.Analysis("analyzer returned no payload", nil)
	}
	if err := payload.Validate(); err != nil {
		return nil, apperrors.Analysis("analyzer produced malformed payload", err)
	}
	return payload, nil
}

func (r *Runner) completeDelivery(ctx context.Context, queueID string) {
	completed, err := r.queue.Complete(ctx, queueID)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to complete delivery", "queue_id", queueID, "error", err)
		return
	}
	if !completed {
		r.logger.WarnContext(ctx, "delivery no longer running at completion", "queue_id", queueID)
	}
}

// failDelivery reports an infrastructure fault to the queue. When the fault
// exhausts the delivery's retries, the job record is moved to failed so
// pollers see the outcome instead of waiting out the record TTL. rec supplies
// the record identity and may be nil when the payload never decoded.
func (r *Runner) failDelivery(ctx context.Context, queueID, reason string, rec *model.JobRecord) {
	terminal, err := r.queue.Fail(ctx, queueID, reason)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to fail delivery", "queue_id", queueID, "error", err)
		return
	}
	if !terminal || rec == nil {
		return
	}

	failed := model.NewJobRecord(rec.JobID, rec.Pull, rec.CreatedAt)
	if err := failed.MarkFailed(reason, r.now()); err != nil {
		r.logger.ErrorContext(ctx, "cannot mark record failed after retry exhaustion",
			"queue_id", queueID, "job_id", rec.JobID, "error", err)
		return
	}
	if err := r.store.SaveRecord(ctx, failed); err != nil {
		r.logger.ErrorContext(ctx, "failed to save record after retry exhaustion",
			"queue_id", queueID, "job_id", rec.JobID, "error", err)
	}
}

// startHeartbeat extends the queue lease periodically while a job is being
// processed. Returns a stop function.
func (r *Runner) startHeartbeat(ctx context.Context, queueID string) func() {
	interval := r.cfg.Lease / 2
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if ok, err := r.queue.Heartbeat(ctx, queueID, r.leaseSeconds()); err != nil {
					r.logger.ErrorContext(ctx, "heartbeat failed", "queue_id", queueID, "error", err)
				} else if !ok {
					r.logger.WarnContext(ctx, "heartbeat not applied (lease may be lost)", "queue_id", queueID)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}
