package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/pullcheck/pullcheck/internal/domain/model"
	apperrors "github.com/pullcheck/pullcheck/internal/errors"
	"github.com/pullcheck/pullcheck/internal/mocks"
	"github.com/pullcheck/pullcheck/internal/testutil"
)

func validRequest() *model.ReviewRequest {
	return &model.ReviewRequest{Owner: "octocat", Repo: "hello-world", Number: 42, Token: "ghp-token"}
}

func cachedPayload() *model.ReviewPayload {
	p := &model.ReviewPayload{
		Files: []model.FileReview{
			{Path: "app.py", Findings: []model.Finding{{Category: model.FindingStyle, Description: "long line"}}},
		},
	}
	p.ComputeSummary()
	return p
}

func newTestService(t *testing.T, store *mocks.MockResultStore, queue *mocks.MockJobQueue) *ReviewService {
	t.Helper()
	svc, err := NewReviewService(ReviewServiceOptions{
		Store:      store,
		Queue:      queue,
		MaxRetries: 3,
		Now:        testutil.FixedTimeFunc(testutil.TestTime()),
	})
	require.NoError(t, err)
	return svc
}

func TestNewReviewService(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockResultStore(ctrl)
	queue := mocks.NewMockJobQueue(ctrl)

	t.Run("success", func(t *testing.T) {
		svc, err := NewReviewService(ReviewServiceOptions{Store: store, Queue: queue})
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("missing store", func(t *testing.T) {
		svc, err := NewReviewService(ReviewServiceOptions{Queue: queue})
		require.Error(t, err)
		assert.Nil(t, svc)
		assert.Contains(t, err.Error(), "ResultStore is required")
	})

	t.Run("missing queue", func(t *testing.T) {
		svc, err := NewReviewService(ReviewServiceOptions{Store: store})
		require.Error(t, err)
		assert.Nil(t, svc)
		assert.Contains(t, err.Error(), "JobQueue is required")
	})

	t.Run("must panics on error", func(t *testing.T) {
		assert.Panics(t, func() {
			MustNewReviewService(ReviewServiceOptions{})
		})
	})
}

func TestReviewService_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("cache hit returns review without enqueueing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		store := mocks.NewMockResultStore(ctrl)
		queue := mocks.NewMockJobQueue(ctrl)
		svc := newTestService(t, store, queue)

		payload := cachedPayload()
		store.EXPECT().GetReview(gomock.Any(), validRequest().Ref()).Return(payload, nil)
		// No SaveRecord and no queue.Create.

		result, err := svc.Submit(ctx, validRequest())
		require.NoError(t, err)

		assert.Equal(t, model.ReviewStatusCached, result.Status)
		assert.Equal(t, payload, result.Review)
		_, parseErr := uuid.Parse(result.JobID)
		assert.NoError(t, parseErr, "cache hits still mint a job id")
	})

	t.Run("cache miss writes pending record then enqueues", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		store := mocks.NewMockResultStore(ctrl)
		queue := mocks.NewMockJobQueue(ctrl)
		svc := newTestService(t, store, queue)

		var savedRec *model.JobRecord
		var createdReq *model.CreateJobRequest

		gomock.InOrder(
			store.EXPECT().GetReview(gomock.Any(), validRequest().Ref()).Return(nil, nil),
			store.EXPECT().SaveRecord(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, rec *model.JobRecord) error {
					savedRec = rec
					return nil
				}),
			queue.EXPECT().Create(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
					createdReq = req
					return &model.Job{ID: "queue-row", Status: model.JobStatusPending}, nil
				}),
		)

		result, err := svc.Submit(ctx, validRequest())
		require.NoError(t, err)

		assert.Equal(t, model.ReviewStatusPending, result.Status)
		assert.Nil(t, result.Review)

		require.NotNil(t, savedRec)
		assert.Equal(t, result.JobID, savedRec.JobID)
		assert.Equal(t, model.ReviewStatusPending, savedRec.Status)
		assert.Equal(t, validRequest().Ref(), savedRec.Pull)
		assert.Equal(t, testutil.TestTime(), savedRec.CreatedAt)

		require.NotNil(t, createdReq)
		assert.Equal(t, 3, createdReq.MaxRetries)

		var item model.WorkItem
		require.NoError(t, json.Unmarshal(createdReq.Payload, &item))
		assert.Equal(t, result.JobID, item.JobID)
		assert.Equal(t, "ghp-token", item.Token)
		assert.Equal(t, validRequest().Ref(), item.Ref())
	})

	t.Run("invalid request", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		svc := newTestService(t, mocks.NewMockResultStore(ctrl), mocks.NewMockJobQueue(ctrl))

		_, err := svc.Submit(ctx, &model.ReviewRequest{Repo: "hello-world", Number: 1})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("nil request", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		svc := newTestService(t, mocks.NewMockResultStore(ctrl), mocks.NewMockJobQueue(ctrl))

		_, err := svc.Submit(ctx, nil)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("store unavailable on cache check", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		store := mocks.NewMockResultStore(ctrl)
		queue := mocks.NewMockJobQueue(ctrl)
		svc := newTestService(t, store, queue)

		store.EXPECT().GetReview(gomock.Any(), gomock.Any()).
			Return(nil, apperrors.Unavailable("get review", nil))

		_, err := svc.Submit(ctx, validRequest())
		require.Error(t, err)
		assert.True(t, apperrors.IsUnavailable(err))
	})

	t.Run("record write failure aborts before enqueue", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		store := mocks.NewMockResultStore(ctrl)
		queue := mocks.NewMockJobQueue(ctrl)
		svc := newTestService(t, store, queue)

		store.EXPECT().GetReview(gomock.Any(), gomock.Any()).Return(nil, nil)
		store.EXPECT().SaveRecord(gomock.Any(), gomock.Any()).
			Return(apperrors.Unavailable("save record", nil))
		// queue.Create must not be called.

		_, err := svc.Submit(ctx, validRequest())
		require.Error(t, err)
		assert.True(t, apperrors.IsUnavailable(err))
	})

	t.Run("enqueue failure surfaces", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		store := mocks.NewMockResultStore(ctrl)
		queue := mocks.NewMockJobQueue(ctrl)
		svc := newTestService(t, store, queue)

		store.EXPECT().GetReview(gomock.Any(), gomock.Any()).Return(nil, nil)
		store.EXPECT().SaveRecord(gomock.Any(), gomock.Any()).Return(nil)
		queue.EXPECT().Create(gomock.Any(), gomock.Any()).
			Return(nil, apperrors.Unavailable("insert job", nil))

		_, err := svc.Submit(ctx, validRequest())
		require.Error(t, err)
		assert.True(t, apperrors.IsUnavailable(err))
	})
}

func TestReviewService_Status(t *testing.T) {
	ctx := context.Background()

	t.Run("returns stored record", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		store := mocks.NewMockResultStore(ctrl)
		svc := newTestService(t, store, mocks.NewMockJobQueue(ctrl))

		jobID := uuid.NewString()
		rec := model.NewJobRecord(jobID, validRequest().Ref(), time.Now())
		store.EXPECT().GetRecord(gomock.Any(), jobID).Return(rec, nil)

		got, err := svc.Status(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, rec, got)
	})

	t.Run("malformed job id reads as not found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// No GetRecord expectation: a non-UUID id can never have a record,
		// so the store is not consulted.
		svc := newTestService(t, mocks.NewMockResultStore(ctrl), mocks.NewMockJobQueue(ctrl))

		_, err := svc.Status(ctx, "not-a-uuid")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("unknown or expired job", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		store := mocks.NewMockResultStore(ctrl)
		svc := newTestService(t, store, mocks.NewMockJobQueue(ctrl))

		jobID := uuid.NewString()
		store.EXPECT().GetRecord(gomock.Any(), jobID).Return(nil, nil)

		_, err := svc.Status(ctx, jobID)
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("store unavailable", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		store := mocks.NewMockResultStore(ctrl)
		svc := newTestService(t, store, mocks.NewMockJobQueue(ctrl))

		jobID := uuid.NewString()
		store.EXPECT().GetRecord(gomock.Any(), jobID).
			Return(nil, apperrors.Unavailable("get record", nil))

		_, err := svc.Status(ctx, jobID)
		require.Error(t, err)
		assert.True(t, apperrors.IsUnavailable(err))
	})
}
