package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objones25/fuzzgroup/internal/cluster"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.MilvusEnabled())
	assert.Equal(t, 1.0, cfg.Worker.RatePerMinute)
	assert.Equal(t, 600*time.Second, cfg.Worker.JobTimeout)
	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 9.1, cfg.Worker.Cluster.Fuzzifier.Calibration.Upper)
	assert.Equal(t, 1.1, cfg.Worker.Cluster.Fuzzifier.Calibration.Lower)
	assert.Equal(t, cluster.LossSquared, cfg.Worker.Cluster.Loss)
}

func TestFromLookup(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"LOG_LEVEL":              "debug",
		"REDIS_ADDR":             "redis:6379",
		"REDIS_DB":               "2",
		"MILVUS_ADDR":            "milvus:19530",
		"MILVUS_COLLECTION":      "proposals",
		"METRICS_ADDR":           ":9100",
		"WORKER_CONCURRENCY":     "4",
		"WORKER_RATE_PER_MINUTE": "0.5",
		"JOB_TIMEOUT":            "15m",
		"POLL_INTERVAL":          "2",
		"READY_TIMEOUT":          "90s",
		"PERSIST_RETRIES":        "5",
		"RECORD_CACHE_SIZE":      "-1",
		"CLUSTER_UPPER_M":        "5",
		"CLUSTER_LOWER_M":        "1.5",
		"CLUSTER_ALPHA":          "1",
		"CLUSTER_EPSILON":        "0.01",
		"CLUSTER_MAX_ITERATIONS": "20",
		"CLUSTER_LOSS":           "linear",
	}))
	require.NoError(t, err)

	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.True(t, cfg.MilvusEnabled())
	assert.Equal(t, "proposals", cfg.Milvus.CollectionName)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 0.5, cfg.Worker.RatePerMinute)
	assert.Equal(t, 15*time.Minute, cfg.Worker.JobTimeout)
	assert.Equal(t, 2*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 90*time.Second, cfg.Worker.ReadyTimeout)
	assert.Equal(t, 5, cfg.Worker.PersistRetries)
	assert.Equal(t, -1, cfg.Manager.CacheSize)

	cc := cfg.Worker.Cluster
	assert.Equal(t, 5.0, cc.Fuzzifier.Calibration.Upper)
	assert.Equal(t, 1.5, cc.Fuzzifier.Calibration.Lower)
	assert.Equal(t, 1.0, cc.Fuzzifier.Calibration.Alpha)
	assert.Equal(t, 0.01, cc.ConvergenceEpsilon)
	assert.Equal(t, 20, cc.MaxIterations)
	assert.Equal(t, cluster.LossLinear, cc.Loss)
}

func TestFromLookupErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"Level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"Integer", map[string]string{"REDIS_DB": "two"}, "REDIS_DB"},
		{"Number", map[string]string{"CLUSTER_ALPHA": "x"}, "CLUSTER_ALPHA"},
		{"Duration", map[string]string{"JOB_TIMEOUT": "soon"}, "JOB_TIMEOUT"},
		{"Loss", map[string]string{"CLUSTER_LOSS": "cubic"}, "CLUSTER_LOSS"},
		{"Fuzzifier_Bounds", map[string]string{"CLUSTER_LOWER_M": "10"}, "fuzzifier"},
		{"Lower_Not_Above_One", map[string]string{"CLUSTER_LOWER_M": "1"}, "fuzzifier_lower"},
		{"Concurrency", map[string]string{"WORKER_CONCURRENCY": "0"}, "concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromLookup(lookupFrom(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CLUSTER_MAX_ITERATIONS=7\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CLUSTER_MAX_ITERATIONS") })

	cfg, err := Load(filepath.Join(dir, "missing.env"), envFile)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Worker.Cluster.MaxIterations)
}

func TestLoadWithoutEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}
