package model

import (
	"errors"
	"fmt"
	"strings"
)

// PullRef identifies a reviewable pull request. The triple is deterministic
// and is the cache identity: the same triple always maps to the same key.
type PullRef struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Number int    `json:"number"`
}

// Validate checks that all identity fields are present and the number is positive.
func (p PullRef) Validate() error {
	if strings.TrimSpace(p.Owner) == "" {
		return errors.New("owner is required")
	}
	if strings.TrimSpace(p.Repo) == "" {
		return errors.New("repo is required")
	}
	if p.Number <= 0 {
		return errors.New("number must be a positive integer")
	}
	return nil
}

func (p PullRef) String() string {
	return fmt.Sprintf("%s/%s#%d", p.Owner, p.Repo, p.Number)
}

// ReviewRequest is a client submission asking for a pull request review.
// The token is opaque to the core and passed through to the artifact fetcher.
type ReviewRequest struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Number int    `json:"number"`
	Token  string `json:"github_token"`
}

// Validate checks the request identity fields.
func (r *ReviewRequest) Validate() error {
	if r == nil {
		return errors.New("review request is required")
	}
	return r.Ref().Validate()
}

// Ref returns the pull identity for this request.
func (r *ReviewRequest) Ref() PullRef {
	return PullRef{Owner: r.Owner, Repo: r.Repo, Number: r.Number}
}

// WorkItem is the queue payload referencing one submitted review job.
type WorkItem struct {
	JobID  string `json:"job_id"`
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Number int    `json:"number"`
	Token  string `json:"token"`
}

// Ref returns the pull identity for this work item.
func (w WorkItem) Ref() PullRef {
	return PullRef{Owner: w.Owner, Repo: w.Repo, Number: w.Number}
}

// Validate checks that the work item carries a job id and a valid pull identity.
func (w WorkItem) Validate() error {
	if w.JobID == "" {
		return errors.New("job id is required")
	}
	return w.Ref().Validate()
}

// PullDetails is the fetched content of a pull request handed to the analyzer.
type PullDetails struct {
	Ref   PullRef `json:"ref"`
	Title string  `json:"title"`
	Body  string  `json:"body"`
	Patch string  `json:"patch"`
}

// SubmitResult is the synchronous response to a review submission.
// Status is either ReviewStatusPending or ReviewStatusCached; Review is
// populated only for cache hits.
type SubmitResult struct {
	JobID  string         `json:"job_id"`
	Status ReviewStatus   `json:"status"`
	Review *ReviewPayload `json:"review,omitempty"`
}
