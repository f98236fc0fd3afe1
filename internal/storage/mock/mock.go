package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/objones25/fuzzgroup/internal/storage"
)

var (
	_ storage.Backend = (*MockStore)(nil)
	_ storage.Queue   = (*MockStore)(nil)
)

// MockStore is an in-memory Backend and Queue for testing
type MockStore struct {
	mu       sync.RWMutex
	jobs     map[string]*storage.Job
	records  map[string]*storage.Record
	results  map[string][]*storage.Result
	statuses map[string][]storage.JobStatus
	queue    []string
	notify   chan struct{}

	errors    map[string]error // Simulate specific errors for testing
	failTimes map[string]int   // Remaining forced failures per operation
	calls     map[string]int
	latency   time.Duration // Simulate network latency
	failRate  float64       // Fraction of operations that should fail
}

func NewMockStore() *MockStore {
	return &MockStore{
		jobs:      make(map[string]*storage.Job),
		records:   make(map[string]*storage.Record),
		results:   make(map[string][]*storage.Result),
		statuses:  make(map[string][]storage.JobStatus),
		notify:    make(chan struct{}, 1),
		errors:    make(map[string]error),
		failTimes: make(map[string]int),
		calls:     make(map[string]int),
	}
}

// SetLatency sets artificial latency for operations
func (m *MockStore) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// SetFailRate sets the fraction of operations that should fail
func (m *MockStore) SetFailRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRate = rate
}

// SetError makes every call of an operation fail with err; nil clears it
func (m *MockStore) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errors, operation)
		return
	}
	m.errors[operation] = err
}

// FailTimes makes the next n calls of an operation fail
func (m *MockStore) FailTimes(operation string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTimes[operation] = n
}

// Calls returns how often an operation was invoked
func (m *MockStore) Calls(operation string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[operation]
}

// simulateLatencyAndFailure adds artificial latency and simulates failures
func (m *MockStore) simulateLatencyAndFailure(ctx context.Context, operation string) error {
	m.mu.Lock()
	m.calls[operation]++
	latency := m.latency
	err := m.errors[operation]
	if err == nil && m.failTimes[operation] > 0 {
		m.failTimes[operation]--
		err = fmt.Errorf("simulated failure for %s", operation)
	}
	if err == nil && m.failRate > 0 && rand.Float64() < m.failRate {
		err = fmt.Errorf("simulated failure for %s", operation)
	}
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(latency):
		}
	}
	return err
}

// PutJob stores a copy of job
func (m *MockStore) PutJob(ctx context.Context, job *storage.Job) error {
	if err := m.simulateLatencyAndFailure(ctx, "put_job"); err != nil {
		return err
	}
	if job == nil {
		return storage.ErrNilJob
	}
	if job.ID == "" {
		return storage.ErrEmptyID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MockStore) GetJob(ctx context.Context, id string) (*storage.Job, error) {
	if err := m.simulateLatencyAndFailure(ctx, "get_job"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, storage.NewOpError("get_job", id, storage.ErrNotFound)
	}
	cp := *job
	return &cp, nil
}

func (m *MockStore) SetStatus(ctx context.Context, id string, status storage.JobStatus) error {
	if err := m.simulateLatencyAndFailure(ctx, "set_status"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return storage.NewOpError("set_status", id, storage.ErrNotFound)
	}
	job.Status = status
	job.UpdatedAt = time.Now()
	m.statuses[id] = append(m.statuses[id], status)
	return nil
}

// PutRecords stores records
func (m *MockStore) PutRecords(ctx context.Context, records []*storage.Record) error {
	if err := m.simulateLatencyAndFailure(ctx, "put_records"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *MockStore) Records(ctx context.Context, ids []string) ([]*storage.Record, error) {
	if err := m.simulateLatencyAndFailure(ctx, "records"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*storage.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := m.records[id]; ok {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *MockStore) PutResult(ctx context.Context, result *storage.Result) error {
	if err := m.simulateLatencyAndFailure(ctx, "put_result"); err != nil {
		return err
	}
	if result == nil {
		return storage.ErrNilJob
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *result
	m.results[result.JobID] = append(m.results[result.JobID], &cp)
	return nil
}

func (m *MockStore) Enqueue(ctx context.Context, jobID string) error {
	if err := m.simulateLatencyAndFailure(ctx, "enqueue"); err != nil {
		return err
	}

	m.mu.Lock()
	m.queue = append(m.queue, jobID)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

func (m *MockStore) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	if err := m.simulateLatencyAndFailure(ctx, "dequeue"); err != nil {
		return "", err
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			id := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return id, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", storage.ErrQueueEmpty
		case <-m.notify:
		}
	}
}

// Helper methods for testing

// Results returns every result persisted for a job, oldest first
func (m *MockStore) Results(jobID string) []*storage.Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*storage.Result(nil), m.results[jobID]...)
}

// LastResult returns the most recently persisted result of a job
func (m *MockStore) LastResult(jobID string) *storage.Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs := m.results[jobID]
	if len(rs) == 0 {
		return nil
	}
	return rs[len(rs)-1]
}

// StatusHistory returns the statuses a job went through via SetStatus
func (m *MockStore) StatusHistory(jobID string) []storage.JobStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]storage.JobStatus(nil), m.statuses[jobID]...)
}

// QueueLen returns the number of pending job IDs
func (m *MockStore) QueueLen() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queue)
}
