package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/objones25/fuzzgroup/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	// ErrQueueFull is returned by Submit when no more jobs can be accepted
	ErrQueueFull = errors.New("dispatcher queue is full")

	// ErrClosed is returned by Submit after Close
	ErrClosed = errors.New("dispatcher is closed")
)

// JobRunner runs one clustering job to completion
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

type task struct {
	id    string
	jobID string
	// queue the job came from, nil when it was submitted directly
	queue storage.Queue
}

// Dispatcher runs submitted jobs on a fixed pool of workers, starting at most
// RatePerMinute of them per minute
type Dispatcher struct {
	runner  JobRunner
	config  Config
	limiter *rate.Limiter
	logger  zerolog.Logger

	tasks  chan task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts Concurrency workers
func NewDispatcher(runner JobRunner, cfg Config) (*Dispatcher, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid worker config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		runner: runner,
		config: cfg,
		logger: log.With().Str("component", "dispatcher").Logger(),
		tasks:  make(chan task, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.RatePerMinute > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerMinute/60), 1)
	}

	d.wg.Add(cfg.Concurrency)
	for i := 0; i < cfg.Concurrency; i++ {
		go d.worker(i)
	}
	return d, nil
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	logger := d.logger.With().Int("worker", id).Logger()

	for t := range d.tasks {
		queuedJobs.Dec()
		if err := d.wait(); err != nil {
			d.requeue(t, logger)
			continue
		}

		start := time.Now()
		err := d.runner.Run(d.ctx, t.jobID)
		event := logger.Info()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		event.
			Str("task_id", t.id).
			Str("job_id", t.jobID).
			Dur("took", time.Since(start)).
			Msg("Job done")
	}
}

// wait blocks until the next job may start. It fails once the dispatcher
// has been cancelled, so buffered jobs are never started on a dead context.
func (d *Dispatcher) wait() error {
	if err := d.ctx.Err(); err != nil {
		return err
	}
	if d.limiter == nil {
		return nil
	}
	return d.limiter.Wait(d.ctx)
}

// requeue hands a job that was never started back to the queue it came from
func (d *Dispatcher) requeue(t task, logger zerolog.Logger) {
	logger = logger.With().Str("task_id", t.id).Str("job_id", t.jobID).Logger()
	if t.queue == nil {
		logger.Warn().Msg("Dropped job on shutdown")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.queue.Enqueue(ctx, t.jobID); err != nil {
		logger.Error().Err(err).Msg("Failed to requeue job on shutdown")
		return
	}
	logger.Info().Msg("Returned job to queue on shutdown")
}

// Submit queues a job without blocking and returns its task ID
func (d *Dispatcher) Submit(jobID string) (string, error) {
	return d.submit(context.Background(), jobID, nil, false)
}

// SubmitWait queues a job, waiting for room in the queue until ctx is done
func (d *Dispatcher) SubmitWait(ctx context.Context, jobID string) (string, error) {
	return d.submit(ctx, jobID, nil, true)
}

func (d *Dispatcher) submit(ctx context.Context, jobID string, queue storage.Queue, block bool) (string, error) {
	if jobID == "" {
		return "", storage.ErrEmptyID
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return "", ErrClosed
	}

	t := task{id: uuid.NewString(), jobID: jobID, queue: queue}
	if !block {
		select {
		case d.tasks <- t:
		default:
			return "", ErrQueueFull
		}
	} else {
		select {
		case d.tasks <- t:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	queuedJobs.Inc()
	d.logger.Debug().Str("task_id", t.id).Str("job_id", jobID).Msg("Job queued")
	return t.id, nil
}

// Consume feeds job IDs from queue to the workers until ctx is done. Jobs
// still buffered when the dispatcher shuts down are pushed back onto queue.
func (d *Dispatcher) Consume(ctx context.Context, queue storage.Queue) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		jobID, err := queue.Dequeue(ctx, d.config.DequeueTimeout)
		switch {
		case err == nil:
		case errors.Is(err, storage.ErrQueueEmpty):
			continue
		case ctx.Err() != nil:
			return nil
		default:
			d.logger.Error().Err(err).Msg("Failed to read job queue")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(d.config.PollInterval):
			}
			continue
		}

		if _, err := d.submit(ctx, jobID, queue, true); err != nil {
			// hand the job back so another consumer can pick it up
			requeueCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if qerr := queue.Enqueue(requeueCtx, jobID); qerr != nil {
				d.logger.Error().Err(qerr).Str("job_id", jobID).Msg("Failed to requeue job")
			}
			cancel()
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Close stops accepting jobs and waits for queued and running jobs. When ctx
// ends first, running jobs are cancelled and Close returns ctx.Err().
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
