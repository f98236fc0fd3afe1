package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/objones25/fuzzgroup/internal/storage"
	"github.com/objones25/fuzzgroup/internal/storage/compression"
	"github.com/objones25/fuzzgroup/internal/storage/monitor"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	jobPrefix    = "job:"
	recordPrefix = "record:"
	resultPrefix = "result:"
	statusPrefix = "status:"

	// PendingQueue is the list job IDs are pushed onto for the workers
	PendingQueue = "jobs:pending"

	storeLabel = "redis"

	defaultCompressionThreshold = 1024
	defaultMaxRetries           = 3
	defaultPoolSize             = 10
	defaultMinIdleConns         = 2
	maxStatusRetries            = 5
)

// Config holds the Redis connection settings
type Config struct {
	Addr                 string
	Password             string
	DB                   int
	PoolSize             int
	MinIdleConns         int
	MaxRetries           int
	CompressionThreshold int
	// ResultTTL expires persisted results; zero keeps them forever
	ResultTTL time.Duration
	Queue     string
}

// DefaultConfig returns a configuration for a local Redis
func DefaultConfig() Config {
	return Config{
		Addr:                 "localhost:6379",
		PoolSize:             defaultPoolSize,
		MinIdleConns:         defaultMinIdleConns,
		MaxRetries:           defaultMaxRetries,
		CompressionThreshold: defaultCompressionThreshold,
		Queue:                PendingQueue,
	}
}

// Store keeps jobs, records, results and the pending queue in Redis
type Store struct {
	client     *goredis.Client
	compressor *compression.Compressor
	config     Config
	logger     zerolog.Logger
}

// New connects to Redis and verifies the connection
func New(cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("addr cannot be empty")
	}
	cfg = withDefaults(cfg)

	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *goredis.Client, cfg Config) *Store {
	cfg = withDefaults(cfg)
	return &Store{
		client:     client,
		compressor: &compression.Compressor{Threshold: cfg.CompressionThreshold},
		config:     cfg,
		logger:     log.With().Str("component", "redis_store").Logger(),
	}
}

func withDefaults(cfg Config) Config {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.MinIdleConns <= 0 {
		cfg.MinIdleConns = defaultMinIdleConns
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = defaultCompressionThreshold
	}
	if cfg.Queue == "" {
		cfg.Queue = PendingQueue
	}
	return cfg
}

func (s *Store) encode(kind string, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	data, err = s.compressor.Compress(data)
	if err != nil {
		return nil, err
	}
	monitor.PayloadBytes.WithLabelValues(storeLabel, kind).Observe(float64(len(data)))
	return data, nil
}

func (s *Store) decode(kind string, data []byte, v interface{}) error {
	data, err := s.compressor.Decompress(data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", kind, err)
	}
	return nil
}

// PutJob stores a job and mirrors its status
func (s *Store) PutJob(ctx context.Context, job *storage.Job) (err error) {
	start := time.Now()
	defer func() { monitor.Observe(storeLabel, "put_job", start, err) }()

	if job == nil {
		return storage.ErrNilJob
	}
	if job.ID == "" {
		return storage.ErrEmptyID
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = time.Now()

	data, err := s.encode("job", job)
	if err != nil {
		return storage.NewOpError("put_job", job.ID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, jobPrefix+job.ID, data, 0)
		pipe.Set(ctx, statusPrefix+job.ID, string(job.Status), 0)
		return nil
	})
	if err != nil {
		return storage.NewOpError("put_job", job.ID, err)
	}
	return nil
}

// GetJob loads a job by ID
func (s *Store) GetJob(ctx context.Context, id string) (job *storage.Job, err error) {
	start := time.Now()
	defer func() { monitor.Observe(storeLabel, "get_job", start, err) }()

	if id == "" {
		return nil, storage.ErrEmptyID
	}

	data, err := s.client.Get(ctx, jobPrefix+id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.NewOpError("get_job", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, storage.NewOpError("get_job", id, err)
	}

	job = &storage.Job{}
	if err := s.decode("job", data, job); err != nil {
		return nil, storage.NewOpError("get_job", id, err)
	}
	return job, nil
}

// PutRecords stores records in one pipeline
func (s *Store) PutRecords(ctx context.Context, records []*storage.Record) (err error) {
	start := time.Now()
	defer func() { monitor.Observe(storeLabel, "put_records", start, err) }()

	if len(records) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, r := range records {
		if r == nil || r.ID == "" {
			return storage.ErrEmptyID
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = time.Now()
		}
		data, err := s.encode("record", r)
		if err != nil {
			return storage.NewOpError("put_records", r.ID, err)
		}
		pipe.Set(ctx, recordPrefix+r.ID, data, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return storage.NewOpError("put_records", "", err)
	}
	return nil
}

// Records loads records with a pipelined GET. Missing IDs are skipped.
func (s *Store) Records(ctx context.Context, ids []string) (records []*storage.Record, err error) {
	start := time.Now()
	defer func() { monitor.Observe(storeLabel, "records", start, err) }()

	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, recordPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, storage.NewOpError("records", "", err)
	}

	records = make([]*storage.Record, 0, len(ids))
	missing := 0
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, goredis.Nil) {
			missing++
			continue
		}
		if err != nil {
			return nil, storage.NewOpError("records", ids[i], err)
		}
		r := &storage.Record{}
		if err := s.decode("record", data, r); err != nil {
			return nil, storage.NewOpError("records", ids[i], err)
		}
		records = append(records, r)
	}

	if missing > 0 {
		s.logger.Debug().
			Int("requested", len(ids)).
			Int("missing", missing).
			Msg("Some records were not found")
	}
	return records, nil
}

// PutResult replaces the stored result of a job
func (s *Store) PutResult(ctx context.Context, result *storage.Result) (err error) {
	start := time.Now()
	defer func() { monitor.Observe(storeLabel, "put_result", start, err) }()

	if result == nil {
		return storage.ErrNilJob
	}
	if result.JobID == "" {
		return storage.ErrEmptyID
	}
	result.UpdatedAt = time.Now()

	data, err := s.encode("result", result)
	if err != nil {
		return storage.NewOpError("put_result", result.JobID, err)
	}
	if err := s.client.Set(ctx, resultPrefix+result.JobID, data, s.config.ResultTTL).Err(); err != nil {
		return storage.NewOpError("put_result", result.JobID, err)
	}
	return nil
}

// GetResult loads the latest result of a job
func (s *Store) GetResult(ctx context.Context, jobID string) (result *storage.Result, err error) {
	start := time.Now()
	defer func() { monitor.Observe(storeLabel, "get_result", start, err) }()

	if jobID == "" {
		return nil, storage.ErrEmptyID
	}

	data, err := s.client.Get(ctx, resultPrefix+jobID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.NewOpError("get_result", jobID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, storage.NewOpError("get_result", jobID, err)
	}

	result = &storage.Result{}
	if err := s.decode("result", data, result); err != nil {
		return nil, storage.NewOpError("get_result", jobID, err)
	}
	return result, nil
}

// SetStatus updates the status key and the stored job atomically
func (s *Store) SetStatus(ctx context.Context, id string, status storage.JobStatus) (err error) {
	start := time.Now()
	defer func() { monitor.Observe(storeLabel, "set_status", start, err) }()

	if id == "" {
		return storage.ErrEmptyID
	}

	key := jobPrefix + id
	txf := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}

		job := &storage.Job{}
		if err := s.decode("job", data, job); err != nil {
			return err
		}
		job.Status = status
		job.UpdatedAt = time.Now()

		updated, err := s.encode("job", job)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			pipe.Set(ctx, statusPrefix+id, string(status), 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxStatusRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, goredis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return storage.NewOpError("set_status", id, err)
	}

	s.logger.Debug().
		Str("job_id", id).
		Str("status", string(status)).
		Msg("Job status updated")
	return nil
}

// Status reads the status key of a job
func (s *Store) Status(ctx context.Context, id string) (storage.JobStatus, error) {
	if id == "" {
		return "", storage.ErrEmptyID
	}
	v, err := s.client.Get(ctx, statusPrefix+id).Result()
	if errors.Is(err, goredis.Nil) {
		return "", storage.NewOpError("status", id, storage.ErrNotFound)
	}
	if err != nil {
		return "", storage.NewOpError("status", id, err)
	}
	return storage.JobStatus(v), nil
}

// Enqueue pushes a job ID onto the pending queue
func (s *Store) Enqueue(ctx context.Context, jobID string) (err error) {
	start := time.Now()
	defer func() { monitor.Observe(storeLabel, "enqueue", start, err) }()

	if jobID == "" {
		return storage.ErrEmptyID
	}
	if err := s.client.LPush(ctx, s.config.Queue, jobID).Err(); err != nil {
		return storage.NewOpError("enqueue", jobID, err)
	}
	return nil
}

// Dequeue pops the oldest job ID, blocking up to timeout
func (s *Store) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	vals, err := s.client.BRPop(ctx, timeout, s.config.Queue).Result()
	if errors.Is(err, goredis.Nil) {
		return "", storage.ErrQueueEmpty
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", storage.NewOpError("dequeue", s.config.Queue, err)
	}
	// BRPOP replies with [queue, value]
	if len(vals) != 2 {
		return "", storage.NewOpError("dequeue", s.config.Queue, fmt.Errorf("unexpected reply %v", vals))
	}
	return vals[1], nil
}

// Health checks the health of the Redis connection
func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements proper resource cleanup
func (s *Store) Close() error {
	return s.client.Close()
}
