// Package core defines the ports between the service layer and its adapters.
package core

import (
	"context"

	"github.com/pullcheck/pullcheck/internal/domain/model"
)

// This file contains the port definitions (hexagonal architecture): the
// contracts between the coordinator/worker and the store, queue, and the two
// external collaborators. Services depend on these interfaces, never on
// concrete implementations.

// ResultStore is the durable key/value store holding job status records and
// cached review payloads, both subject to per-key expiry. All writes are
// full-record overwrites on a fixed key (last write wins).
type ResultStore interface {
	// SaveRecord persists the job record under its job id.
	SaveRecord(ctx context.Context, record *model.JobRecord) error
	// GetRecord returns the record for a job id, or (nil, nil) when absent or expired.
	GetRecord(ctx context.Context, jobID string) (*model.JobRecord, error)
	// SaveReview caches the payload under the pull's deterministic key.
	SaveReview(ctx context.Context, ref model.PullRef, payload *model.ReviewPayload) error
	// GetReview returns the cached payload for a pull, or (nil, nil) on a miss.
	GetReview(ctx context.Context, ref model.PullRef) (*model.ReviewPayload, error)
	// Health reports whether the store is reachable.
	Health(ctx context.Context) error
}

// JobQueue is the durable work queue decoupling submission from execution.
// Delivery is at-least-once: a reserved row whose lease lapses is re-reserved.
type JobQueue interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error)
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, id string) (bool, error)
	// Fail records a delivery failure. It returns true when retries are
	// exhausted and the row parked in the terminal failed state.
	Fail(ctx context.Context, id, errMsg string) (bool, error)
	Stats(ctx context.Context) (*model.JobStats, error)
}

// ArtifactFetcher retrieves pull request content from the hosting provider.
// Credentials are opaque to the core and forwarded per call.
type ArtifactFetcher interface {
	FetchPull(ctx context.Context, ref model.PullRef, token string) (*model.PullDetails, error)
}

// Analyzer produces a structured review from fetched pull content. It may be
// heuristic or LLM backed; the core treats it as an opaque function with
// possible latency and failure.
type Analyzer interface {
	Analyze(ctx context.Context, details *model.PullDetails) (*model.ReviewPayload, error)
}
