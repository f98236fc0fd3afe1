package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a job or result does not exist
	ErrNotFound = errors.New("not found")

	// ErrEmptyID is returned when an operation is given an empty ID
	ErrEmptyID = errors.New("id cannot be empty")

	// ErrNilJob is returned when a nil job or result is stored
	ErrNilJob = errors.New("job cannot be nil")

	// ErrQueueEmpty is returned when Dequeue times out
	ErrQueueEmpty = errors.New("queue empty")
)

// OpError records the storage operation and key that failed
type OpError struct {
	Op  string
	Key string
	Err error
}

func (e *OpError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError wraps err with the failing operation and key
func NewOpError(op, key string, err error) error {
	return &OpError{Op: op, Key: key, Err: err}
}

// IsNotFound checks if an error is a "not found" error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
