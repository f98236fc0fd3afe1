package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/objones25/fuzzgroup/internal/storage"
	"github.com/objones25/fuzzgroup/internal/storage/manager"
	redisstore "github.com/objones25/fuzzgroup/internal/storage/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndToEndRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rcfg := redisstore.DefaultConfig()
	rcfg.Addr = mr.Addr()
	store, err := redisstore.New(rcfg)
	require.NoError(t, err)

	mcfg := manager.DefaultConfig()
	mcfg.HealthInterval = 0
	backend, err := manager.New(store, store, mcfg)
	require.NoError(t, err)
	defer backend.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records := append(twoTriples(), &storage.Record{ID: "pending", Title: "not embedded yet"})
	require.NoError(t, store.PutRecords(ctx, records))
	job := readyJob("job-e2e", []string{"a1", "a2", "a3", "b1", "b2", "b3", "pending"}, 2, 3)
	require.NoError(t, store.PutJob(ctx, job))

	cfg := testConfig()
	cfg.DequeueTimeout = time.Second
	runner, err := NewRunner(backend, cfg)
	require.NoError(t, err)
	d, err := NewDispatcher(runner, cfg)
	require.NoError(t, err)

	consumed := make(chan error, 1)
	go func() { consumed <- d.Consume(ctx, store) }()

	require.NoError(t, store.Enqueue(ctx, "job-e2e"))

	assert.Eventually(t, func() bool {
		status, err := store.Status(context.Background(), "job-e2e")
		return err == nil && status == storage.StatusFinished
	}, 10*time.Second, 20*time.Millisecond)

	result, err := store.GetResult(context.Background(), "job-e2e")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1,a2,a3", "b1,b2,b3"}, groupSet(result.Groups))
	assert.Equal(t, []string{"pending"}, result.Unclustered)
	assert.Len(t, result.Loss, result.Iteration)

	stored, err := store.GetJob(context.Background(), "job-e2e")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFinished, stored.Status)

	cancel()
	select {
	case err := <-consumed:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("consume did not stop")
	}
	require.NoError(t, d.Close(context.Background()))
}
