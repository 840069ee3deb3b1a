// Package service implements the business logic for review submission and
// status tracking.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pullcheck/pullcheck/internal/core"
	"github.com/pullcheck/pullcheck/internal/domain/model"
	apperrors "github.com/pullcheck/pullcheck/internal/errors"
)

// ReviewServiceOptions groups dependencies for ReviewService.
type ReviewServiceOptions struct {
	Store      core.ResultStore // Required: job record and review cache store
	Queue      core.JobQueue    // Required: durable work queue
	Logger     *slog.Logger     // Optional: structured logger
	MaxRetries int              // Optional: queue delivery retry limit
	Now        func() time.Time // Optional: clock override for tests
}

// ReviewService accepts review submissions and answers status polls.
//
// Submission order matters: the cache is consulted first, then the pending
// record is written, then the work item is enqueued. A record without a queue
// row is a stale pending job the reaper will eventually fail; a queue row
// without a record is rebuilt by the worker.
type ReviewService struct {
	store      core.ResultStore
	queue      core.JobQueue
	logger     *slog.Logger
	maxRetries int
	now        func() time.Time
}

// NewReviewService constructs a new ReviewService.
func NewReviewService(opts ReviewServiceOptions) (*ReviewService, error) {
	if opts.Store == nil {
		return nil, errors.New("ResultStore is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("JobQueue is required")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "review_service")
	}

	return &ReviewService{
		store:      opts.Store,
		queue:      opts.Queue,
		logger:     logger,
		maxRetries: opts.MaxRetries,
		now:        now,
	}, nil
}

// MustNewReviewService constructs a new ReviewService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewReviewService(opts ReviewServiceOptions) *ReviewService {
	svc, err := NewReviewService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create ReviewService: %v", err))
	}
	return svc
}

// Submit accepts a review request. A cached result is returned immediately
// without touching the queue; otherwise a pending job record is written and a
// work item enqueued.
func (s *ReviewService) Submit(ctx context.Context, req *model.ReviewRequest) (*model.SubmitResult, error) {
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	ref := req.Ref()
	jobID := uuid.NewString()

	cached, err := s.store.GetReview(ctx, ref)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "review served from cache", "pull", ref.String(), "job_id", jobID)
		}
		return &model.SubmitResult{
			JobID:  jobID,
			Status: model.ReviewStatusCached,
			Review: cached,
		}, nil
	}

	rec := model.NewJobRecord(jobID, ref, s.now())
	if err := s.store.SaveRecord(ctx, rec); err != nil {
		return nil, err
	}

	item := model.WorkItem{
		JobID:  jobID,
		Owner:  req.Owner,
		Repo:   req.Repo,
		Number: req.Number,
		Token:  req.Token,
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal work item")
	}

	if _, err := s.queue.Create(ctx, &model.CreateJobRequest{
		Payload:    payload,
		MaxRetries: s.maxRetries,
	}); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "review enqueued", "pull", ref.String(), "job_id", jobID)
	}
	return &model.SubmitResult{
		JobID:  jobID,
		Status: model.ReviewStatusPending,
	}, nil
}

// Status returns the job record for a previously submitted review. A
// malformed job id can never have a record, so it reads as not found rather
// than invalid.
func (s *ReviewService) Status(ctx context.Context, jobID string) (*model.JobRecord, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, apperrors.NotFoundf("job %s not found", jobID)
	}

	rec, err := s.store.GetRecord(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperrors.NotFoundf("job %s not found", jobID)
	}
	return rec, nil
}
