// Package reaper periodically cleans up the job queue: stale pending rows are
// failed, and old terminal rows are deleted.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/pullcheck/pullcheck/config"
	"github.com/pullcheck/pullcheck/internal/data"
)

// QueueJanitor is the subset of queue maintenance operations the reaper needs.
type QueueJanitor interface {
	FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
	DeleteOldJobs(ctx context.Context, retention time.Duration, batchSize int) (int64, error)
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.ReaperConfig
	Logger *slog.Logger

	// Repo overrides the queue repository, for tests.
	Repo QueueJanitor
}

// Runner runs the cleanup loop on a fixed interval.
type Runner struct {
	repo   QueueJanitor
	cfg    config.ReaperConfig
	logger *slog.Logger
}

// NewRunner creates a reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	repo := opts.Repo
	if repo == nil {
		if opts.DB == nil {
			return nil, errors.New("database connection is required")
		}
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: logger})
	}

	cfg := opts.Config
	cfg.Sanitize()

	return &Runner{
		repo:   repo,
		cfg:    cfg,
		logger: logger.With("component", "reaper"),
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled. One
// sweep runs immediately on start.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper",
		"interval", r.cfg.Interval,
		"stale_pending_age", r.cfg.StalePendingAge,
		"retain_terminal", r.cfg.RetainTerminal,
	)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	failed, err := r.repo.FailStalePendingJobs(ctx, r.cfg.StalePendingAge, r.cfg.BatchSize)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to reap stale pending jobs", "error", err)
	} else if failed > 0 {
		r.logger.InfoContext(ctx, "reaped stale pending jobs", "count", failed)
	}

	deleted, err := r.repo.DeleteOldJobs(ctx, r.cfg.RetainTerminal, r.cfg.BatchSize)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to delete old jobs", "error", err)
	} else if deleted > 0 {
		r.logger.InfoContext(ctx, "deleted old terminal jobs", "count", deleted)
	}
}
