package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pullcheck/pullcheck/internal/domain/model"
	apperrors "github.com/pullcheck/pullcheck/internal/errors"
	"github.com/pullcheck/pullcheck/internal/testutil"
)

func newRepoUnderTest(t *testing.T) (*JobRepo, *FixedTimeProvider, *sql.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	tp := NewFixedTimeProvider(time.Now().UTC())
	repo := NewJobRepo(db, RepoConfig{RetryDelaySeconds: 30, TimeProvider: tp})
	return repo, tp, db
}

func enqueue(t *testing.T, repo *JobRepo, maxRetries int) *model.Job {
	t.Helper()

	payload, err := json.Marshal(model.WorkItem{
		JobID: "11111111-2222-3333-4444-555555555555",
		Owner: "octocat", Repo: "hello-world", Number: 1,
	})
	require.NoError(t, err)

	job, err := repo.Create(context.Background(), &model.CreateJobRequest{
		Payload:    payload,
		MaxRetries: maxRetries,
	})
	require.NoError(t, err)
	return job
}

func TestJobRepo_Create(t *testing.T) {
	repo, tp, _ := newRepoUnderTest(t)
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		job := enqueue(t, repo, 0)

		assert.NotEmpty(t, job.ID)
		assert.Equal(t, model.JobStatusPending, job.Status)
		assert.Equal(t, 0, job.RetryCount)
		assert.Equal(t, 3, job.MaxRetries)
		assert.Nil(t, job.StartedAt)
		assert.Nil(t, job.LeaseExpiresAt)
		assert.WithinDuration(t, tp.Now(), job.ScheduledAt, time.Second)
	})

	t.Run("explicit max retries", func(t *testing.T) {
		job := enqueue(t, repo, 5)
		assert.Equal(t, 5, job.MaxRetries)
	})

	t.Run("nil request", func(t *testing.T) {
		_, err := repo.Create(ctx, nil)
		assert.Error(t, err)
	})

	t.Run("empty payload rejected", func(t *testing.T) {
		_, err := repo.Create(ctx, &model.CreateJobRequest{})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestJobRepo_GetByID(t *testing.T) {
	repo, _, _ := newRepoUnderTest(t)
	ctx := context.Background()

	created := enqueue(t, repo, 0)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.JSONEq(t, string(created.Payload), string(got.Payload))

	_, err = repo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobRepo_ReserveNext(t *testing.T) {
	t.Run("empty queue", func(t *testing.T) {
		repo, _, _ := newRepoUnderTest(t)

		_, err := repo.ReserveNext(context.Background(), 60)
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
	})

	t.Run("reserves and leases the oldest job", func(t *testing.T) {
		repo, tp, _ := newRepoUnderTest(t)
		ctx := context.Background()

		first := enqueue(t, repo, 0)
		tp.AddTime(time.Second)
		enqueue(t, repo, 0)

		job, err := repo.ReserveNext(ctx, 60)
		require.NoError(t, err)
		assert.Equal(t, first.ID, job.ID)
		assert.Equal(t, model.JobStatusRunning, job.Status)
		require.NotNil(t, job.StartedAt)
		require.NotNil(t, job.LeaseExpiresAt)
		assert.WithinDuration(t, tp.Now().Add(60*time.Second), *job.LeaseExpiresAt, time.Second)
	})

	t.Run("running jobs are invisible", func(t *testing.T) {
		repo, _, _ := newRepoUnderTest(t)
		ctx := context.Background()

		enqueue(t, repo, 0)
		_, err := repo.ReserveNext(ctx, 60)
		require.NoError(t, err)

		_, err = repo.ReserveNext(ctx, 60)
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
	})

	t.Run("invalid lease", func(t *testing.T) {
		repo, _, _ := newRepoUnderTest(t)
		_, err := repo.ReserveNext(context.Background(), 0)
		assert.Error(t, err)
	})

	t.Run("concurrent workers never share a job", func(t *testing.T) {
		repo, _, _ := newRepoUnderTest(t)
		ctx := context.Background()

		const jobs = 8
		for range jobs {
			enqueue(t, repo, 0)
		}

		var mu sync.Mutex
		seen := make(map[string]int)

		var wg sync.WaitGroup
		for range jobs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				job, err := repo.ReserveNext(ctx, 60)
				if err != nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Len(t, seen, jobs)
		for id, count := range seen {
			assert.Equal(t, 1, count, "job %s reserved more than once", id)
		}
	})
}

func TestJobRepo_LeaseExpiry(t *testing.T) {
	repo, tp, _ := newRepoUnderTest(t)
	ctx := context.Background()

	created := enqueue(t, repo, 0)

	reserved, err := repo.ReserveNext(ctx, 60)
	require.NoError(t, err)
	require.Equal(t, created.ID, reserved.ID)

	// Within the lease the job stays invisible.
	tp.AddTime(30 * time.Second)
	_, err = repo.ReserveNext(ctx, 60)
	assert.ErrorIs(t, err, model.ErrNoJobsAvailable)

	// Past the lease the job is requeued and re-reserved.
	tp.AddTime(31 * time.Second)
	again, err := repo.ReserveNext(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, model.JobStatusRunning, again.Status)
}

func TestJobRepo_Heartbeat(t *testing.T) {
	repo, tp, _ := newRepoUnderTest(t)
	ctx := context.Background()

	enqueue(t, repo, 0)
	job, err := repo.ReserveNext(ctx, 60)
	require.NoError(t, err)

	ok, err := repo.Heartbeat(ctx, job.ID, 120)
	require.NoError(t, err)
	assert.True(t, ok)

	refreshed, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, refreshed.LeaseExpiresAt)
	assert.WithinDuration(t, tp.Now().Add(120*time.Second), *refreshed.LeaseExpiresAt, time.Second)

	// A completed job no longer accepts heartbeats.
	_, err = repo.Complete(ctx, job.ID)
	require.NoError(t, err)
	ok, err = repo.Heartbeat(ctx, job.ID, 60)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJobRepo_Complete(t *testing.T) {
	repo, _, _ := newRepoUnderTest(t)
	ctx := context.Background()

	t.Run("completes a running job once", func(t *testing.T) {
		enqueue(t, repo, 0)
		job, err := repo.ReserveNext(ctx, 60)
		require.NoError(t, err)

		ok, err := repo.Complete(ctx, job.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		done, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, done.Status)
		assert.NotNil(t, done.CompletedAt)
		assert.Nil(t, done.LeaseExpiresAt)

		// Completing again is a no-op, which makes redelivery safe.
		ok, err = repo.Complete(ctx, job.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("pending job cannot be completed", func(t *testing.T) {
		job := enqueue(t, repo, 0)
		ok, err := repo.Complete(ctx, job.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestJobRepo_Fail(t *testing.T) {
	t.Run("retries with delay until exhausted", func(t *testing.T) {
		repo, tp, _ := newRepoUnderTest(t)
		ctx := context.Background()

		enqueue(t, repo, 2)

		// First failure: back to pending, delayed by the retry backoff.
		job, err := repo.ReserveNext(ctx, 60)
		require.NoError(t, err)
		terminalFail, err := repo.Fail(ctx, job.ID, "store unreachable")
		require.NoError(t, err)
		assert.False(t, terminalFail, "a retry remains, so the failure is not terminal")

		failed, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, failed.Status)
		assert.Equal(t, 1, failed.RetryCount)
		require.NotNil(t, failed.LastError)
		assert.Equal(t, "store unreachable", *failed.LastError)

		// Not yet eligible before the retry delay elapses.
		_, err = repo.ReserveNext(ctx, 60)
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)

		tp.AddTime(31 * time.Second)

		// Second failure exhausts max_retries and parks the job.
		job, err = repo.ReserveNext(ctx, 60)
		require.NoError(t, err)
		terminalFail, err = repo.Fail(ctx, job.ID, "store still unreachable")
		require.NoError(t, err)
		assert.True(t, terminalFail, "exhausting max_retries reports the terminal failure")

		terminal, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, terminal.Status)
		assert.Equal(t, 2, terminal.RetryCount)
		assert.NotNil(t, terminal.CompletedAt)

		tp.AddTime(time.Hour)
		_, err = repo.ReserveNext(ctx, 60)
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
	})

	t.Run("failing a non-running job is a no-op", func(t *testing.T) {
		repo, _, _ := newRepoUnderTest(t)

		job := enqueue(t, repo, 0)
		ok, err := repo.Fail(context.Background(), job.ID, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestJobRepo_Stats(t *testing.T) {
	repo, _, _ := newRepoUnderTest(t)
	ctx := context.Background()

	enqueue(t, repo, 0)
	enqueue(t, repo, 0)
	running, err := repo.ReserveNext(ctx, 60)
	require.NoError(t, err)
	_, err = repo.Complete(ctx, running.ID)
	require.NoError(t, err)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 0, stats.Running)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 0, stats.Failed)
}

func TestJobRepo_FailStalePendingJobs(t *testing.T) {
	repo, _, db := newRepoUnderTest(t)
	ctx := context.Background()

	stale := enqueue(t, repo, 0)
	fresh := enqueue(t, repo, 0)

	// created_at comes from the database clock; age the stale row directly.
	_, err := db.ExecContext(ctx,
		`UPDATE jobs SET created_at = now() - interval '25 hours' WHERE id = $1`, stale.ID)
	require.NoError(t, err)

	failed, err := repo.FailStalePendingJobs(ctx, 24*time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	got, err := repo.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "expired before reservation", *got.LastError)

	untouched, err := repo.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, untouched.Status)

	t.Run("validates arguments", func(t *testing.T) {
		_, err := repo.FailStalePendingJobs(ctx, 0, 100)
		assert.Error(t, err)
		_, err = repo.FailStalePendingJobs(ctx, time.Hour, 0)
		assert.Error(t, err)
	})
}

func TestJobRepo_DeleteOldJobs(t *testing.T) {
	repo, _, db := newRepoUnderTest(t)
	ctx := context.Background()

	enqueue(t, repo, 0)
	old, err := repo.ReserveNext(ctx, 60)
	require.NoError(t, err)
	_, err = repo.Complete(ctx, old.ID)
	require.NoError(t, err)

	// Age the terminal row past the retention window.
	_, err = db.ExecContext(ctx,
		`UPDATE jobs SET completed_at = now() - interval '8 days' WHERE id = $1`, old.ID)
	require.NoError(t, err)

	kept := enqueue(t, repo, 0)

	deleted, err := repo.DeleteOldJobs(ctx, 7*24*time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetByID(ctx, old.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = repo.GetByID(ctx, kept.ID)
	assert.NoError(t, err)
}

func TestScanJobClonesNullables(t *testing.T) {
	s := cloneNullableString(sql.NullString{Valid: true, String: "boom"})
	require.NotNil(t, s)
	assert.Equal(t, "boom", *s)
	assert.Nil(t, cloneNullableString(sql.NullString{}))

	now := time.Now()
	ti := cloneNullableTime(sql.NullTime{Valid: true, Time: now})
	require.NotNil(t, ti)
	assert.True(t, ti.Equal(now))
	assert.Nil(t, cloneNullableTime(sql.NullTime{}))
}

func TestJobRepoRetryDelayDefault(t *testing.T) {
	repo := NewJobRepo(nil, RepoConfig{})
	assert.Equal(t, defaultRetryDelaySeconds, repo.retryDelay())

	repo = NewJobRepo(nil, RepoConfig{RetryDelaySeconds: 5})
	assert.Equal(t, 5, repo.retryDelay())
}
