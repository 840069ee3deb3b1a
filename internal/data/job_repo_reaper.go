package data

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/pullcheck/pullcheck/internal/errors"
)

// FailStalePendingJobs parks pending rows older than maxAge in the failed
// state. These are deliveries nothing will ever pick up, usually because they
// exhausted workers while the queue was backed up past the result TTL.
func (r *JobRepo) FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("maxAge must be positive")
	}
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be positive")
	}

	now := r.timeProvider.Now().UTC()
	cutoff := now.Add(-maxAge)

	res, err := r.DB.ExecContext(ctx, `
      UPDATE jobs
      SET status = 'failed',
          last_error = 'expired before reservation',
          completed_at = $1,
          updated_at = $1
      WHERE id IN (
        SELECT id FROM jobs
        WHERE status = 'pending' AND created_at < $2
        ORDER BY created_at ASC
        LIMIT $3
      )
    `, now, cutoff, batchSize)
	if err != nil {
		return 0, apperrors.MapDBError(fmt.Errorf("fail stale pending jobs: %w", err))
	}

	failed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if failed > 0 && r.logger != nil {
		r.logger.WarnContext(ctx, "failed stale pending jobs", "count", failed, "cutoff", cutoff)
	}
	return failed, nil
}

// DeleteOldJobs removes terminal rows whose completion time is older than
// retention. Queue rows are bookkeeping only; results live in the store.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, retention time.Duration, batchSize int) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be positive")
	}

	cutoff := r.timeProvider.Now().UTC().Add(-retention)

	res, err := r.DB.ExecContext(ctx, `
      DELETE FROM jobs
      WHERE id IN (
        SELECT id FROM jobs
        WHERE status IN ('completed', 'failed')
          AND completed_at IS NOT NULL
          AND completed_at < $1
        ORDER BY completed_at ASC
        LIMIT $2
      )
    `, cutoff, batchSize)
	if err != nil {
		return 0, apperrors.MapDBError(fmt.Errorf("delete old jobs: %w", err))
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if deleted > 0 && r.logger != nil {
		r.logger.InfoContext(ctx, "deleted old terminal jobs", "count", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}
