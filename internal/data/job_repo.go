// Package data provides the storage adapters backing the pullcheck ports: the
// PostgreSQL work queue and the Redis result store.
package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/pullcheck/pullcheck/internal/errors"

	"github.com/pullcheck/pullcheck/internal/domain/model"
)

// ErrJobNotFound is returned when a queue row is not found.
var ErrJobNotFound = errors.New("job not found")

const defaultMaxRetries = 3

// RepoConfig holds configuration options for the job queue repository.
type RepoConfig struct {
	// RetryDelaySeconds is the fixed delay before a failed delivery becomes
	// eligible for reservation again. Defaults to 30.
	RetryDelaySeconds int
	Logger            *slog.Logger
	TimeProvider      TimeProvider
}

// JobRepo provides PostgreSQL-backed work queue operations. Reservation uses
// FOR UPDATE SKIP LOCKED so concurrent workers never reserve the same row, and
// every reserved row carries a lease that returns it to pending on expiry.
type JobRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const defaultRetryDelaySeconds = 30

func (r *JobRepo) retryDelay() int {
	if r.cfg.RetryDelaySeconds > 0 {
		return r.cfg.RetryDelaySeconds
	}
	return defaultRetryDelaySeconds
}

const jobColumns = `
  id,
  status,
  payload,
  scheduled_at,
  started_at,
  completed_at,
  retry_count,
  max_retries,
  last_error,
  lease_expires_at,
  created_at,
  updated_at
`

// reserveNextSQL atomically reserves the oldest eligible pending row. The CTE
// plus single UPDATE makes the reservation race-free across workers.
const reserveNextSQL = `
  WITH cte AS (
    SELECT id FROM jobs
    WHERE status = 'pending' AND scheduled_at <= $1
    ORDER BY scheduled_at ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET
    status = 'running',
    started_at = COALESCE(j.started_at, $2),
    lease_expires_at = $3,
    updated_at = $4
  FROM cte
  WHERE j.id = cte.id
  RETURNING ` + jobColumns

// Create enqueues a new work item and returns the created row.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	var scheduledAt time.Time
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	} else {
		scheduledAt = r.timeProvider.Now().UTC()
	}

	row := r.DB.QueryRowContext(ctx, `
      INSERT INTO jobs(status, payload, scheduled_at, max_retries)
      VALUES ('pending', $1, $2, $3)
      RETURNING `+jobColumns,
		[]byte(req.Payload), scheduledAt, maxRetries,
	)

	job, err := scanJob(row)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("insert job: %w", err))
	}
	return job, nil
}

// GetByID returns a queue row by id.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get job: %w", err))
	}
	return job, nil
}

// requeueExpired returns rows with lapsed leases to pending so another worker
// can pick them up. This is the at-least-once half of the delivery contract.
func (r *JobRepo) requeueExpired(ctx context.Context) (int64, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
      UPDATE jobs
      SET status = 'pending', lease_expires_at = NULL, updated_at = $1
      WHERE status = 'running'
        AND lease_expires_at IS NOT NULL
        AND lease_expires_at < $1
    `, now)
	if err != nil {
		return 0, fmt.Errorf("requeue expired: %w", err)
	}
	requeued, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if requeued > 0 && r.logger != nil {
		r.logger.WarnContext(ctx, "requeued jobs with expired leases", "count", requeued)
	}
	return requeued, nil
}

// ReserveNext reserves the next available work item for processing, or
// model.ErrNoJobsAvailable when the queue is empty.
func (r *JobRepo) ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error) {
	if leaseSeconds <= 0 {
		return nil, errors.New("leaseSeconds must be positive")
	}

	if _, err := r.requeueExpired(ctx); err != nil {
		return nil, apperrors.MapDBError(err)
	}

	now := r.timeProvider.Now()
	leaseExpiresAt := now.Add(time.Duration(leaseSeconds) * time.Second)

	row := r.DB.QueryRowContext(ctx, reserveNextSQL, now.UTC(), now.UTC(), leaseExpiresAt.UTC(), now.UTC())
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNoJobsAvailable
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("reserve job: %w", err))
	}
	return job, nil
}

// Heartbeat refreshes the lease on a running row. Returns false when the row
// is no longer running (lease lapsed and another worker reserved it).
func (r *JobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	now := r.timeProvider.Now().UTC()
	leaseExpiration := now.Add(time.Duration(leaseSeconds) * time.Second)

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET lease_expires_at = $2, updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, jobID, leaseExpiration, now)
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("heartbeat job: %w", err))
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Complete marks a running row as completed. Returns false when the row was
// not running, which makes redelivered deliveries a no-op.
func (r *JobRepo) Complete(ctx context.Context, id string) (bool, error) {
	now := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed',
		    completed_at = $2,
		    updated_at = $2,
		    lease_expires_at = NULL,
		    last_error = NULL
		WHERE id = $1 AND status = 'running'
	`, id, now)
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("complete job: %w", err))
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Fail records a delivery failure. The row returns to pending after the retry
// delay until max_retries is reached, then parks in the terminal failed state.
// Retries are finite by construction; there is no infinite reprocessing path.
// Returns true when this failure was the terminal one, so callers can surface
// the exhaustion to pollers.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	retryAt := now.Add(time.Duration(r.retryDelay()) * time.Second)

	var status model.JobStatus
	err := r.DB.QueryRowContext(ctx, `
      UPDATE jobs
      SET
        last_error = $2,
        retry_count = retry_count + 1,
        status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
        completed_at = CASE WHEN retry_count + 1 >= max_retries THEN $3::timestamptz ELSE NULL END,
        lease_expires_at = NULL,
        scheduled_at = CASE WHEN retry_count + 1 >= max_retries THEN scheduled_at ELSE $4::timestamptz END,
        updated_at = $3
      WHERE id = $1 AND status = 'running'
      RETURNING status
    `, id, errMsg, now, retryAt).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("fail job: %w", err))
	}

	if r.logger != nil {
		r.logger.WarnContext(ctx, "job delivery failed", "job_id", id, "status", status, "error", errMsg)
	}
	return status == model.JobStatusFailed, nil
}

// Stats returns counts of queue rows per state.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("job stats: %w", err))
	}
	defer rows.Close()

	stats := &model.JobStats{}
	for rows.Next() {
		var status model.JobStatus
		var count int
		if scanErr := rows.Scan(&status, &count); scanErr != nil {
			return nil, fmt.Errorf("scan job stats: %w", scanErr)
		}
		switch status {
		case model.JobStatusPending:
			stats.Pending = count
		case model.JobStatusRunning:
			stats.Running = count
		case model.JobStatusCompleted:
			stats.Completed = count
		case model.JobStatusFailed:
			stats.Failed = count
		}
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("job stats rows: %w", rowsErr)
	}
	return stats, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var (
		payload                                []byte
		lastError                              sql.NullString
		startedAt, completedAt, leaseExpiresAt sql.NullTime
	)

	if err := scanner.Scan(
		&job.ID,
		&job.Status,
		&payload,
		&job.ScheduledAt,
		&startedAt,
		&completedAt,
		&job.RetryCount,
		&job.MaxRetries,
		&lastError,
		&leaseExpiresAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.Payload = append(json.RawMessage(nil), payload...)
	job.LastError = cloneNullableString(lastError)
	job.StartedAt = cloneNullableTime(startedAt)
	job.CompletedAt = cloneNullableTime(completedAt)
	job.LeaseExpiresAt = cloneNullableTime(leaseExpiresAt)
	return job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
