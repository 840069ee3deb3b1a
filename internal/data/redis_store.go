package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pullcheck/pullcheck/internal/domain/model"
	apperrors "github.com/pullcheck/pullcheck/internal/errors"
)

const (
	reviewCachePrefix = "review-cache:"
	jobStatusPrefix   = "job-status:"
)

// ReviewStore persists job records and cached review payloads in Redis.
// Expiry is delegated to Redis TTLs: the record TTL must outlive the cache
// TTL so a job whose result is still cached can always be polled.
type ReviewStore struct {
	client    redis.UniversalClient
	cacheTTL  time.Duration
	recordTTL time.Duration
}

// ReviewStoreOptions configures a ReviewStore.
type ReviewStoreOptions struct {
	Client    redis.UniversalClient
	CacheTTL  time.Duration
	RecordTTL time.Duration
}

// NewReviewStore creates a ReviewStore with the given client and TTLs.
func NewReviewStore(opts ReviewStoreOptions) *ReviewStore {
	return &ReviewStore{
		client:    opts.Client,
		cacheTTL:  opts.CacheTTL,
		recordTTL: opts.RecordTTL,
	}
}

func reviewCacheKey(ref model.PullRef) string {
	return fmt.Sprintf("%s%s/%s:%d", reviewCachePrefix, ref.Owner, ref.Repo, ref.Number)
}

func jobStatusKey(jobID string) string {
	return jobStatusPrefix + jobID
}

// SaveRecord writes a job record under its job id, refreshing the record TTL.
func (s *ReviewStore) SaveRecord(ctx context.Context, rec *model.JobRecord) error {
	if rec == nil {
		return apperrors.Validation("job record is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	if err := s.client.Set(ctx, jobStatusKey(rec.JobID), data, s.recordTTL).Err(); err != nil {
		return apperrors.Unavailable("save job record", err)
	}
	return nil
}

// GetRecord returns the record for a job id, or (nil, nil) when the key is
// missing or expired.
func (s *ReviewStore) GetRecord(ctx context.Context, jobID string) (*model.JobRecord, error) {
	data, err := s.client.Get(ctx, jobStatusKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Unavailable("get job record", err)
	}
	var rec model.JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal job record %s: %w", jobID, err)
	}
	return &rec, nil
}

// SaveReview caches a completed review payload for a pull request.
func (s *ReviewStore) SaveReview(ctx context.Context, ref model.PullRef, payload *model.ReviewPayload) error {
	if payload == nil {
		return apperrors.Validation("review payload is required")
	}
	if err := payload.Validate(); err != nil {
		return apperrors.Validation(err.Error())
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal review payload: %w", err)
	}
	if err := s.client.Set(ctx, reviewCacheKey(ref), data, s.cacheTTL).Err(); err != nil {
		return apperrors.Unavailable("save review", err)
	}
	return nil
}

// GetReview returns the cached payload for a pull request, or (nil, nil) on
// a cache miss.
func (s *ReviewStore) GetReview(ctx context.Context, ref model.PullRef) (*model.ReviewPayload, error) {
	data, err := s.client.Get(ctx, reviewCacheKey(ref)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Unavailable("get review", err)
	}
	var payload model.ReviewPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal review payload for %s: %w", ref, err)
	}
	return &payload, nil
}

// Health pings the backing Redis instance.
func (s *ReviewStore) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return apperrors.Unavailable("redis health", err)
	}
	return nil
}
