package model

import (
	"fmt"
	"time"
)

// ReviewStatus is the client-visible state of a submitted review job.
type ReviewStatus string

const (
	// ReviewStatusPending indicates the job is created but not yet picked up.
	ReviewStatusPending ReviewStatus = "pending"
	// ReviewStatusProcessing indicates a worker is executing the review.
	ReviewStatusProcessing ReviewStatus = "processing"
	// ReviewStatusCompleted indicates the review finished and the result is stored.
	ReviewStatusCompleted ReviewStatus = "completed"
	// ReviewStatusFailed indicates the review terminally failed.
	ReviewStatusFailed ReviewStatus = "failed"

	// ReviewStatusCached is returned only from submission when an unexpired
	// cache entry short-circuits job creation. It never appears in a JobRecord.
	ReviewStatusCached ReviewStatus = "cached"
)

// Valid returns true if the status is a known JobRecord state.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewStatusPending, ReviewStatusProcessing, ReviewStatusCompleted, ReviewStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true for states with no outgoing transitions.
func (s ReviewStatus) Terminal() bool {
	return s == ReviewStatusCompleted || s == ReviewStatusFailed
}

// JobRecord is the persisted status and result record for one review job.
// It is created by the coordinator in the pending state, owned by exactly one
// worker while processing, and read verbatim by status polling. All writes are
// full-record overwrites keyed by JobID.
type JobRecord struct {
	JobID       string         `json:"job_id"`
	Status      ReviewStatus   `json:"status"`
	Pull        PullRef        `json:"pull"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	FailedAt    *time.Time     `json:"failed_at,omitempty"`
	Result      *ReviewPayload `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// NewJobRecord creates a pending record for a freshly submitted job.
func NewJobRecord(jobID string, ref PullRef, now time.Time) *JobRecord {
	return &JobRecord{
		JobID:     jobID,
		Status:    ReviewStatusPending,
		Pull:      ref,
		CreatedAt: now.UTC(),
	}
}

// MarkProcessing transitions the record to processing and stamps StartedAt.
// Transitions out of a terminal state are rejected so polling clients never
// observe a terminal status followed by a non-terminal one.
func (r *JobRecord) MarkProcessing(now time.Time) error {
	if r.Status.Terminal() {
		return fmt.Errorf("job %s is already %s", r.JobID, r.Status)
	}
	t := now.UTC()
	r.Status = ReviewStatusProcessing
	r.StartedAt = &t
	return nil
}

// MarkCompleted transitions the record to completed with its result.
func (r *JobRecord) MarkCompleted(result *ReviewPayload, now time.Time) error {
	if r.Status.Terminal() {
		return fmt.Errorf("job %s is already %s", r.JobID, r.Status)
	}
	t := now.UTC()
	r.Status = ReviewStatusCompleted
	r.CompletedAt = &t
	r.Result = result
	r.Error = ""
	return nil
}

// MarkFailed transitions the record to failed with a human-readable error.
func (r *JobRecord) MarkFailed(errMsg string, now time.Time) error {
	if r.Status.Terminal() {
		return fmt.Errorf("job %s is already %s", r.JobID, r.Status)
	}
	t := now.UTC()
	r.Status = ReviewStatusFailed
	r.FailedAt = &t
	r.Error = errMsg
	r.Result = nil
	return nil
}
