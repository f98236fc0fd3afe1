package storage

import (
	"context"
	"time"
)

// JobStore persists jobs, their status and their results
type JobStore interface {
	// GetJob returns the job with the given ID or ErrNotFound
	GetJob(ctx context.Context, id string) (*Job, error)

	// PutResult replaces the stored result of a job
	PutResult(ctx context.Context, result *Result) error

	// SetStatus updates the status of a job
	SetStatus(ctx context.Context, id string, status JobStatus) error
}

// RecordSource loads records by ID. Unknown IDs are skipped, so the result
// may be shorter than ids; order follows ids.
type RecordSource interface {
	Records(ctx context.Context, ids []string) ([]*Record, error)
}

// Backend is everything a clustering worker needs from storage
type Backend interface {
	JobStore
	RecordSource
}

// Queue hands job IDs from the API side to workers
type Queue interface {
	// Enqueue appends a job ID to the queue
	Enqueue(ctx context.Context, jobID string) error

	// Dequeue blocks up to timeout for the next job ID; returns ErrQueueEmpty on timeout
	Dequeue(ctx context.Context, timeout time.Duration) (string, error)
}
