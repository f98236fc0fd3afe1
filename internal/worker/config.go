package worker

import (
	"fmt"
	"time"

	"github.com/objones25/fuzzgroup/internal/cluster"
)

// Config holds the scheduling parameters of clustering jobs
type Config struct {
	// Concurrency is the number of jobs clustered at the same time
	Concurrency int
	// QueueSize bounds the jobs accepted but not yet started
	QueueSize int
	// RatePerMinute limits how many jobs start per minute; zero disables the limit
	RatePerMinute float64

	// JobTimeout bounds a whole job, waiting for readiness included
	JobTimeout time.Duration
	// PollInterval is the delay between readiness checks
	PollInterval time.Duration
	// ReadyTimeout bounds the wait for a job to become ready
	ReadyTimeout time.Duration
	// DequeueTimeout is how long Consume blocks on an empty queue
	DequeueTimeout time.Duration

	// PersistRetries is the number of attempts to store each step's result
	PersistRetries int
	// RetryInterval is the first backoff delay, doubled after every attempt
	RetryInterval time.Duration

	// Parallelism bounds the goroutines used for pairwise distances
	Parallelism int

	// Cluster is the engine configuration; Clusters and Capacity are taken from each job
	Cluster cluster.Config
}

// DefaultConfig mirrors the scheduling of the reference deployment:
// one job per minute, ten minutes per job, readiness polled every five seconds
func DefaultConfig() Config {
	return Config{
		Concurrency:    1,
		QueueSize:      100,
		RatePerMinute:  1,
		JobTimeout:     600 * time.Second,
		PollInterval:   5 * time.Second,
		ReadyTimeout:   600 * time.Second,
		DequeueTimeout: 5 * time.Second,
		PersistRetries: 3,
		RetryInterval:  500 * time.Millisecond,
		Cluster:        cluster.DefaultConfig(),
	}
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue size cannot be negative, got %d", c.QueueSize)
	}
	if c.RatePerMinute < 0 {
		return fmt.Errorf("rate per minute cannot be negative, got %v", c.RatePerMinute)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("job timeout must be positive, got %v", c.JobTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.ReadyTimeout <= 0 {
		return fmt.Errorf("ready timeout must be positive, got %v", c.ReadyTimeout)
	}
	if c.PersistRetries <= 0 {
		return fmt.Errorf("persist retries must be positive, got %d", c.PersistRetries)
	}
	if c.RetryInterval < 0 {
		return fmt.Errorf("retry interval cannot be negative, got %v", c.RetryInterval)
	}
	// Clusters and Capacity come from the job, so check the rest with placeholders
	cc := c.Cluster
	cc.Clusters, cc.Capacity = 1, 1
	if err := cc.Validate(); err != nil {
		return fmt.Errorf("cluster config: %w", err)
	}
	return nil
}
