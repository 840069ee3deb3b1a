package model

import (
	"encoding/json"
	"errors"
	"time"
)

// JobStatus is the internal state of a queue row. It is distinct from
// ReviewStatus: an analysis failure completes the queue row (the delivery
// succeeded) while the JobRecord is marked failed.
type JobStatus string

const (
	// JobStatusPending indicates a queue row waiting to be reserved.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a worker holds the lease on the row.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates delivery and processing finished.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates retries were exhausted.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusCompleted || s == JobStatusFailed
}

// ErrNoJobsAvailable is returned when no queue rows are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Job is one durable work queue row. The queue guarantees at-least-once
// delivery: a row whose lease expires returns to pending and is re-reserved.
type Job struct {
	ID             string          `json:"id"                         db:"id"`
	Status         JobStatus       `json:"status"                     db:"status"`
	Payload        json.RawMessage `json:"payload"                    db:"payload"`
	ScheduledAt    time.Time       `json:"scheduled_at"               db:"scheduled_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	RetryCount     int             `json:"retry_count"                db:"retry_count"`
	MaxRetries     int             `json:"max_retries"                db:"max_retries"`
	LastError      *string         `json:"last_error,omitempty"       db:"last_error"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
}

// WorkItem decodes the row payload into a work item.
func (j *Job) WorkItem() (WorkItem, error) {
	var item WorkItem
	if err := json.Unmarshal(j.Payload, &item); err != nil {
		return WorkItem{}, err
	}
	return item, nil
}

// CreateJobRequest represents a request to enqueue a new work item.
type CreateJobRequest struct {
	Payload     json.RawMessage `json:"payload"`
	MaxRetries  int             `json:"max_retries"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	if r.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	return nil
}

// JobStats represents counts of queue rows in each state.
type JobStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
