package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/objones25/fuzzgroup/internal/storage"
	"github.com/objones25/fuzzgroup/internal/storage/cache"
	"github.com/objones25/fuzzgroup/internal/storage/monitor"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrCircuitOpen is returned while a store is cut off after repeated failures
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Ensure Manager implements Backend
var _ storage.Backend = (*Manager)(nil)

// HealthChecker is implemented by stores that can report their health
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Config holds configuration for the storage manager
type Config struct {
	// CacheSize is the number of records kept in memory; negative disables the cache
	CacheSize int
	// Fields is the number of embedded fields a record needs to be cacheable
	Fields int

	// Circuit breaker configuration
	MaxFailures    int
	BreakDuration  time.Duration
	HealthInterval time.Duration
}

// DefaultConfig returns the default manager configuration
func DefaultConfig() Config {
	return Config{
		CacheSize:      10000,
		Fields:         4,
		MaxFailures:    5,
		BreakDuration:  30 * time.Second,
		HealthInterval: 30 * time.Second,
	}
}

// breaker opens after MaxFailures consecutive errors and half-opens after BreakDuration
type breaker struct {
	name        string
	maxFailures int
	duration    time.Duration

	mu         sync.Mutex
	errorCount int
	openedAt   time.Time
	open       bool
}

func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return nil
	}
	if time.Since(b.openedAt) >= b.duration {
		// half-open: let the next call through, one more failure re-opens
		b.open = false
		b.errorCount = b.maxFailures - 1
		monitor.CircuitBreakerState.WithLabelValues(b.name).Set(0)
		return nil
	}
	return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
}

func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil || storage.IsNotFound(err) || errors.Is(err, context.Canceled) {
		b.errorCount = 0
		return
	}
	b.errorCount++
	if b.errorCount >= b.maxFailures && !b.open {
		b.open = true
		b.openedAt = time.Now()
		monitor.CircuitBreakerState.WithLabelValues(b.name).Set(1)
		monitor.CircuitBreakerTrips.WithLabelValues(b.name).Inc()
	}
}

func (b *breaker) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// Manager composes a job store and a record source into one Backend,
// with an LRU in front of the records and a breaker around each store
type Manager struct {
	jobs    storage.JobStore
	records storage.RecordSource
	source  storage.RecordSource
	cache   *cache.RecordCache
	config  Config
	logger  zerolog.Logger

	jobsBreaker    *breaker
	recordsBreaker *breaker

	mu     sync.RWMutex
	health struct {
		healthy     bool
		lastHealthy time.Time
		lastError   error
	}
	stopChan  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a manager and starts its health check loop
func New(jobs storage.JobStore, records storage.RecordSource, cfg Config) (*Manager, error) {
	if jobs == nil {
		return nil, fmt.Errorf("job store cannot be nil")
	}
	if records == nil {
		return nil, fmt.Errorf("record source cannot be nil")
	}
	def := DefaultConfig()
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.BreakDuration <= 0 {
		cfg.BreakDuration = def.BreakDuration
	}
	if cfg.Fields <= 0 {
		cfg.Fields = def.Fields
	}

	m := &Manager{
		jobs:     jobs,
		source:   records,
		records:  records,
		config:   cfg,
		logger:   log.With().Str("component", "storage_manager").Logger(),
		stopChan: make(chan struct{}),
		jobsBreaker: &breaker{
			name: "jobs", maxFailures: cfg.MaxFailures, duration: cfg.BreakDuration,
		},
		recordsBreaker: &breaker{
			name: "records", maxFailures: cfg.MaxFailures, duration: cfg.BreakDuration,
		},
	}
	m.health.healthy = true

	if cfg.CacheSize >= 0 {
		c, err := cache.NewRecordCache(records, cfg.CacheSize, cfg.Fields)
		if err != nil {
			return nil, fmt.Errorf("failed to create record cache: %w", err)
		}
		m.cache = c
		m.records = c
	}

	if cfg.HealthInterval > 0 {
		m.wg.Add(1)
		go m.healthCheck()
	}

	m.logger.Info().
		Bool("record_cache", m.cache != nil).
		Int("cache_size", cfg.CacheSize).
		Dur("health_interval", cfg.HealthInterval).
		Msg("Storage manager initialized")
	return m, nil
}

// GetJob loads a job from the job store
func (m *Manager) GetJob(ctx context.Context, id string) (*storage.Job, error) {
	if err := m.jobsBreaker.allow(); err != nil {
		return nil, err
	}
	job, err := m.jobs.GetJob(ctx, id)
	m.jobsBreaker.record(err)
	return job, err
}

// PutResult stores a result in the job store
func (m *Manager) PutResult(ctx context.Context, result *storage.Result) error {
	if err := m.jobsBreaker.allow(); err != nil {
		return err
	}
	err := m.jobs.PutResult(ctx, result)
	m.jobsBreaker.record(err)
	return err
}

// SetStatus updates a job status in the job store
func (m *Manager) SetStatus(ctx context.Context, id string, status storage.JobStatus) error {
	if err := m.jobsBreaker.allow(); err != nil {
		return err
	}
	err := m.jobs.SetStatus(ctx, id, status)
	m.jobsBreaker.record(err)
	return err
}

// Records loads records through the cache
func (m *Manager) Records(ctx context.Context, ids []string) ([]*storage.Record, error) {
	if err := m.recordsBreaker.allow(); err != nil {
		return nil, err
	}
	records, err := m.records.Records(ctx, ids)
	m.recordsBreaker.record(err)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	return records, nil
}

// InvalidateRecords drops records from the cache, e.g. after they were re-embedded
func (m *Manager) InvalidateRecords(ids ...string) {
	if m.cache != nil {
		m.cache.Invalidate(ids...)
	}
}

// Health checks the health of both stores
func (m *Manager) Health(ctx context.Context) error {
	if h, ok := m.jobs.(HealthChecker); ok {
		err := h.Health(ctx)
		monitor.HealthStatus.WithLabelValues("jobs").Set(boolGauge(err == nil))
		if err != nil {
			return fmt.Errorf("job store health check failed: %w", err)
		}
	}
	if h, ok := m.source.(HealthChecker); ok {
		err := h.Health(ctx)
		monitor.HealthStatus.WithLabelValues("records").Set(boolGauge(err == nil))
		if err != nil {
			return fmt.Errorf("record source health check failed: %w", err)
		}
	}
	return nil
}

// Healthy reports the result of the last background health check
func (m *Manager) Healthy() (bool, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health.healthy, m.health.lastHealthy, m.health.lastError
}

// CircuitOpen reports whether either breaker is open
func (m *Manager) CircuitOpen() bool {
	return m.jobsBreaker.isOpen() || m.recordsBreaker.isOpen()
}

// Close stops background tasks and closes the stores
func (m *Manager) Close() error {
	var errs []error
	m.closeOnce.Do(func() {
		close(m.stopChan)
		m.wg.Wait()

		closed := make(map[io.Closer]bool)
		for _, s := range []interface{}{m.jobs, m.source} {
			c, ok := s.(io.Closer)
			if !ok || closed[c] {
				continue
			}
			closed[c] = true
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// Background tasks

func (m *Manager) healthCheck() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := m.Health(ctx)
			cancel()

			m.mu.Lock()
			m.health.healthy = err == nil
			m.health.lastError = err
			if err == nil {
				m.health.lastHealthy = time.Now()
			}
			m.mu.Unlock()

			if err != nil {
				m.logger.Warn().Err(err).Msg("Health check failed")
			}
		}
	}
}

func boolGauge(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}
