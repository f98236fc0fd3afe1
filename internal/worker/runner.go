package worker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/objones25/fuzzgroup/internal/cluster"
	"github.com/objones25/fuzzgroup/internal/storage"
	"github.com/objones25/fuzzgroup/internal/strategy/fields"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotReady is returned when a job did not become ready in time
	ErrNotReady = errors.New("job not ready for clustering")

	// ErrNoRecords is returned when none of a job's records can be clustered
	ErrNoRecords = errors.New("job has no clusterable records")

	// errJobClosed marks a job that reached a final status before it was ready
	errJobClosed = errors.New("job already closed")
)

// Runner executes a single clustering job against a storage backend
type Runner struct {
	backend storage.Backend
	config  Config
	logger  zerolog.Logger
}

// NewRunner creates a job runner
func NewRunner(backend storage.Backend, cfg Config) (*Runner, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid worker config: %w", err)
	}
	return &Runner{
		backend: backend,
		config:  cfg,
		logger:  log.With().Str("component", "worker").Logger(),
	}, nil
}

// Run waits for the job to become ready, clusters its records and persists
// the partition after every iteration. Any failure marks the job FAILED.
func (r *Runner) Run(ctx context.Context, jobID string) (err error) {
	start := time.Now()
	activeJobs.Inc()
	defer activeJobs.Dec()

	logger := r.logger.With().Str("job_id", jobID).Logger()

	ctx, cancel := context.WithTimeout(ctx, r.config.JobTimeout)
	defer cancel()

	defer func() {
		jobDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			jobsTotal.WithLabelValues(string(storage.StatusFinished)).Inc()
			return
		}
		jobsTotal.WithLabelValues(string(storage.StatusFailed)).Inc()
		logger.Error().Err(err).Dur("took", time.Since(start)).Msg("Clustering job failed")
		if !storage.IsNotFound(err) && !errors.Is(err, errJobClosed) {
			r.markFailed(jobID, logger)
		}
	}()

	job, err := r.waitReady(ctx, jobID)
	if err != nil {
		return err
	}

	if err := r.retry(ctx, "set_status", func(ctx context.Context) error {
		return r.backend.SetStatus(ctx, jobID, storage.StatusClustering)
	}); err != nil {
		return err
	}

	recordIDs := dedupe(job.RecordIDs)
	var records []*storage.Record
	if err := r.retry(ctx, "load_records", func(ctx context.Context) error {
		var err error
		records, err = r.backend.Records(ctx, recordIDs)
		return err
	}); err != nil {
		return err
	}

	ids, items, unclustered := splitRecords(recordIDs, records)
	logger.Info().
		Int("records", len(recordIDs)).
		Int("clusterable", len(items)).
		Int("unclustered", len(unclustered)).
		Int("clusters", job.Config.NumberOfClusters).
		Int("capacity", job.Config.MaxItemsPerCluster).
		Msg("Starting clustering")
	if len(items) == 0 {
		return ErrNoRecords
	}

	order := job.Config.Order
	if len(order) == 0 {
		order = fields.DefaultOrder
	}
	strategy, err := fields.New(ctx, items, order, r.config.Parallelism)
	if err != nil {
		return fmt.Errorf("failed to build distance strategy: %w", err)
	}

	cfg := r.config.Cluster
	cfg.Clusters = job.Config.NumberOfClusters
	cfg.Capacity = job.Config.MaxItemsPerCluster
	cfg.Seed = seedFor(jobID)
	cfg.Logger = &logger
	if cfg.Fuzzifier.Mode == cluster.FuzzifierAdaptive && cfg.Fuzzifier.Calibration.Parallelism <= 0 {
		cfg.Fuzzifier.Calibration.Parallelism = r.config.Parallelism
	}

	var last cluster.Step
	state, err := cluster.Execute(ctx, items, strategy, cfg, func(step cluster.Step) error {
		last = step
		result := toResult(jobID, step, ids, unclustered)
		return r.retry(ctx, "put_result", func(ctx context.Context) error {
			return r.backend.PutResult(ctx, result)
		})
	})
	if err != nil {
		return err
	}

	if err := r.retry(ctx, "set_status", func(ctx context.Context) error {
		return r.backend.SetStatus(ctx, jobID, storage.StatusFinished)
	}); err != nil {
		return err
	}

	jobIterations.Observe(float64(last.Iteration))
	if n := len(last.Loss); n > 0 {
		finalLoss.Set(last.Loss[n-1])
	}
	logger.Info().
		Str("state", state.String()).
		Int("iterations", last.Iteration).
		Int("unassigned", len(last.Partition.Unassigned)).
		Dur("took", time.Since(start)).
		Msg("Finished clustering")
	return nil
}

// waitReady polls the job until it is ready for clustering
func (r *Runner) waitReady(ctx context.Context, jobID string) (*storage.Job, error) {
	deadline := time.Now().Add(r.config.ReadyTimeout)
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		var job *storage.Job
		err := r.retry(ctx, "get_job", func(ctx context.Context) error {
			var err error
			job, err = r.backend.GetJob(ctx, jobID)
			return err
		})
		if err != nil {
			return nil, err
		}
		if job.ReadyForCluster {
			return job, nil
		}
		if job.Status.Terminal() {
			return nil, fmt.Errorf("%w: %w as %s", ErrNotReady, errJobClosed, job.Status)
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w after %v", ErrNotReady, r.config.ReadyTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// retry runs op up to PersistRetries times with doubling backoff. Missing
// objects and cancellation are not retried.
func (r *Runner) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	delay := r.config.RetryInterval
	var err error
	for attempt := 1; attempt <= r.config.PersistRetries; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if storage.IsNotFound(err) || ctx.Err() != nil {
			return err
		}
		if attempt == r.config.PersistRetries {
			break
		}

		persistRetries.Inc()
		r.logger.Warn().
			Err(err).
			Str("operation", op).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying storage operation")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, r.config.PersistRetries, err)
}

// markFailed sets the FAILED status on a context of its own, since the job's
// context may already be done
func (r *Runner) markFailed(jobID string, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.backend.SetStatus(ctx, jobID, storage.StatusFailed); err != nil {
		logger.Warn().Err(err).Msg("Failed to mark job as failed")
	}
}

// splitRecords separates records with every field embedded from the rest.
// IDs without a record are reported as unclustered too.
func splitRecords(ids []string, records []*storage.Record) ([]string, []fields.Item, []string) {
	byID := make(map[string]*storage.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	var readyIDs, unclustered []string
	var items []fields.Item
	for _, id := range ids {
		rec, ok := byID[id]
		if !ok || !rec.Ready(fields.NumFields) {
			unclustered = append(unclustered, id)
			continue
		}
		readyIDs = append(readyIDs, id)
		items = append(items, fields.FromFloat32(rec.Vectors))
	}
	return readyIDs, items, unclustered
}

// toResult maps a step's index partition to record IDs
func toResult(jobID string, step cluster.Step, ids, unclustered []string) *storage.Result {
	groups := make([][]string, len(step.Partition.Groups))
	for k, members := range step.Partition.Groups {
		groups[k] = make([]string, len(members))
		for j, idx := range members {
			groups[k][j] = ids[idx]
		}
	}

	rest := make([]string, 0, len(unclustered)+len(step.Partition.Unassigned))
	rest = append(rest, unclustered...)
	for _, idx := range step.Partition.Unassigned {
		rest = append(rest, ids[idx])
	}

	return &storage.Result{
		JobID:       jobID,
		Iteration:   step.Iteration,
		Groups:      groups,
		Unclustered: rest,
		Loss:        append([]float64(nil), step.Loss...),
		State:       step.State.String(),
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// seedFor derives a stable seed so re-running a job reproduces its partition
func seedFor(jobID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(jobID))
	return int64(h.Sum64())
}
