package manager

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/objones25/fuzzgroup/internal/storage"
	"github.com/objones25/fuzzgroup/internal/storage/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkedStore adds Health and Close to the mock store
type checkedStore struct {
	*mock.MockStore
	healthErr atomic.Value
	closed    atomic.Int32
}

func newCheckedStore() *checkedStore {
	return &checkedStore{MockStore: mock.NewMockStore()}
}

func (s *checkedStore) Health(ctx context.Context) error {
	if err, ok := s.healthErr.Load().(error); ok {
		return err
	}
	return nil
}

func (s *checkedStore) Close() error {
	s.closed.Add(1)
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxFailures = 2
	cfg.BreakDuration = 50 * time.Millisecond
	cfg.HealthInterval = 0
	return cfg
}

func seed(t *testing.T, s *checkedStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.PutJob(ctx, &storage.Job{ID: "j1", RecordIDs: []string{"a", "b"}}))
	require.NoError(t, s.PutRecords(ctx, []*storage.Record{
		{ID: "a", Vectors: [][]float32{{1}, {1}, {1}, {1}}},
		{ID: "b", Vectors: [][]float32{{2}, {2}, {2}, {2}}},
	}))
}

func TestManagerDelegates(t *testing.T) {
	ctx := context.Background()
	store := newCheckedStore()
	seed(t, store)

	m, err := New(store, store, testConfig())
	require.NoError(t, err)
	defer m.Close()

	job, err := m.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, job.RecordIDs)

	require.NoError(t, m.SetStatus(ctx, "j1", storage.StatusClustering))
	require.NoError(t, m.PutResult(ctx, &storage.Result{JobID: "j1", Iteration: 1}))
	assert.Equal(t, 1, store.LastResult("j1").Iteration)

	records, err := m.Records(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = m.Records(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Calls("records"), "second load served from cache")

	m.InvalidateRecords("a")
	_, err = m.Records(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, store.Calls("records"))
}

func TestManagerWithoutCache(t *testing.T) {
	ctx := context.Background()
	store := newCheckedStore()
	seed(t, store)

	cfg := testConfig()
	cfg.CacheSize = -1
	m, err := New(store, store, cfg)
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 3; i++ {
		_, err := m.Records(ctx, []string{"a"})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, store.Calls("records"))
}

func TestCircuitBreaker(t *testing.T) {
	ctx := context.Background()
	store := newCheckedStore()
	seed(t, store)

	m, err := New(store, store, testConfig())
	require.NoError(t, err)
	defer m.Close()

	store.SetError("get_job", errors.New("connection refused"))
	for i := 0; i < 2; i++ {
		_, err := m.GetJob(ctx, "j1")
		require.Error(t, err)
	}
	assert.True(t, m.CircuitOpen())

	calls := store.Calls("get_job")
	_, err = m.GetJob(ctx, "j1")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, calls, store.Calls("get_job"), "open breaker does not reach the store")

	// records use their own breaker
	_, err = m.Records(ctx, []string{"a"})
	assert.NoError(t, err)

	store.SetError("get_job", nil)
	time.Sleep(60 * time.Millisecond)
	_, err = m.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, m.CircuitOpen())
}

func TestNotFoundDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	store := newCheckedStore()

	m, err := New(store, store, testConfig())
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 5; i++ {
		_, err := m.GetJob(ctx, "missing")
		assert.True(t, storage.IsNotFound(err))
	}
	assert.False(t, m.CircuitOpen())
}

func TestHealth(t *testing.T) {
	ctx := context.Background()
	jobs := newCheckedStore()
	records := newCheckedStore()

	cfg := testConfig()
	cfg.HealthInterval = 10 * time.Millisecond
	m, err := New(jobs, records, cfg)
	require.NoError(t, err)

	assert.NoError(t, m.Health(ctx))

	records.healthErr.Store(errors.New("milvus down"))
	assert.ErrorContains(t, m.Health(ctx), "record source")

	assert.Eventually(t, func() bool {
		healthy, _, _ := m.Healthy()
		return !healthy
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, int32(1), jobs.closed.Load())
	assert.Equal(t, int32(1), records.closed.Load())
}

func TestSharedStoreClosedOnce(t *testing.T) {
	store := newCheckedStore()
	m, err := New(store, store, testConfig())
	require.NoError(t, err)
	require.NoError(t, m.Close())
	assert.Equal(t, int32(1), store.closed.Load())
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, mock.NewMockStore(), testConfig())
	assert.Error(t, err)
	_, err = New(mock.NewMockStore(), nil, testConfig())
	assert.Error(t, err)
}
