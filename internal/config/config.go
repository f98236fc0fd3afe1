package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/objones25/fuzzgroup/internal/cluster"
	"github.com/objones25/fuzzgroup/internal/storage/manager"
	"github.com/objones25/fuzzgroup/internal/storage/milvus"
	redisstore "github.com/objones25/fuzzgroup/internal/storage/redis"
	"github.com/objones25/fuzzgroup/internal/worker"
)

// DefaultEnvFiles are the .env locations tried by Load, first match wins
var DefaultEnvFiles = []string{
	".env",       // Current directory
	"../../.env", // Project root when running from cmd/<name>
}

// Config is the complete daemon configuration
type Config struct {
	LogLevel    zerolog.Level
	MetricsAddr string

	Redis   redisstore.Config
	Milvus  milvus.Config // disabled when Addr is empty
	Manager manager.Config
	Worker  worker.Config
}

// Default returns the configuration used when no variable is set
func Default() *Config {
	return &Config{
		LogLevel:    zerolog.InfoLevel,
		MetricsAddr: ":9090",
		Redis:       redisstore.DefaultConfig(),
		Milvus:      milvus.Config{CollectionName: "thesis_records"},
		Manager:     manager.DefaultConfig(),
		Worker:      worker.DefaultConfig(),
	}
}

// MilvusEnabled reports whether record vectors are read from Milvus
func (c *Config) MilvusEnabled() bool {
	return c.Milvus.Addr != ""
}

// Load reads the first .env file found, then the environment. A missing .env
// file is not an error; variables already set in the environment win.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = DefaultEnvFiles
	}

	var loadErr error
	for _, envFile := range envFiles {
		err := godotenv.Load(envFile)
		if err == nil {
			loadErr = nil
			break
		}
		loadErr = err
	}

	// It's okay if no .env file is found, we'll use environment variables
	if loadErr != nil && !os.IsNotExist(loadErr) {
		return nil, fmt.Errorf("failed to load env file: %w", loadErr)
	}

	return FromLookup(os.LookupEnv)
}

// FromLookup builds a configuration from a variable lookup function
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		level, err := zerolog.ParseLevel(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("LOG_LEVEL: %w", err))
		}
		cfg.LogLevel = level
	}
	p.setString("METRICS_ADDR", &cfg.MetricsAddr)

	p.setString("REDIS_ADDR", &cfg.Redis.Addr)
	p.setString("REDIS_PASSWORD", &cfg.Redis.Password)
	p.setInt("REDIS_DB", &cfg.Redis.DB)
	p.setString("REDIS_QUEUE", &cfg.Redis.Queue)
	p.setDuration("RESULT_TTL", &cfg.Redis.ResultTTL)

	p.setString("MILVUS_ADDR", &cfg.Milvus.Addr)
	p.setString("MILVUS_COLLECTION", &cfg.Milvus.CollectionName)
	p.setInt("MILVUS_DIMENSION", &cfg.Milvus.Dimension)

	p.setInt("RECORD_CACHE_SIZE", &cfg.Manager.CacheSize)
	p.setDuration("HEALTH_INTERVAL", &cfg.Manager.HealthInterval)

	w := &cfg.Worker
	p.setInt("WORKER_CONCURRENCY", &w.Concurrency)
	p.setFloat("WORKER_RATE_PER_MINUTE", &w.RatePerMinute)
	p.setDuration("JOB_TIMEOUT", &w.JobTimeout)
	p.setDuration("POLL_INTERVAL", &w.PollInterval)
	p.setDuration("READY_TIMEOUT", &w.ReadyTimeout)
	p.setInt("PERSIST_RETRIES", &w.PersistRetries)

	cc := &w.Cluster
	p.setFloat("CLUSTER_UPPER_M", &cc.Fuzzifier.Calibration.Upper)
	p.setFloat("CLUSTER_LOWER_M", &cc.Fuzzifier.Calibration.Lower)
	p.setFloat("CLUSTER_ALPHA", &cc.Fuzzifier.Calibration.Alpha)
	p.setFloat("CLUSTER_EPSILON", &cc.ConvergenceEpsilon)
	p.setInt("CLUSTER_MAX_ITERATIONS", &cc.MaxIterations)
	if v, ok := lookup("CLUSTER_LOSS"); ok && v != "" {
		loss, ok := cluster.ParseLossForm(v)
		if !ok {
			p.errs = append(p.errs, fmt.Errorf("CLUSTER_LOSS: unknown loss form %q", v))
		}
		cc.Loss = loss
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR cannot be empty")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("REDIS_DB cannot be negative, got %d", c.Redis.DB)
	}
	if c.MilvusEnabled() && c.Milvus.Dimension < 0 {
		return fmt.Errorf("MILVUS_DIMENSION cannot be negative, got %d", c.Milvus.Dimension)
	}
	if err := c.Worker.Validate(); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	return nil
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) get(key string) (string, bool) {
	v, ok := p.lookup(key)
	return v, ok && v != ""
}

func (p *parser) setString(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *parser) setInt(key string, dst *int) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return
	}
	*dst = n
}

func (p *parser) setFloat(key string, dst *float64) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid number %q", key, v))
		return
	}
	*dst = f
}

// setDuration accepts Go durations ("90s", "5m") and plain seconds ("600")
func (p *parser) setDuration(key string, dst *time.Duration) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return
	}
	*dst = d
}
