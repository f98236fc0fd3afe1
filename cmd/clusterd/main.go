package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/objones25/fuzzgroup/internal/config"
	"github.com/objones25/fuzzgroup/internal/storage"
	"github.com/objones25/fuzzgroup/internal/storage/manager"
	"github.com/objones25/fuzzgroup/internal/storage/milvus"
	redisstore "github.com/objones25/fuzzgroup/internal/storage/redis"
	"github.com/objones25/fuzzgroup/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	zerolog.SetGlobalLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "clusterd").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := redisstore.New(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
	}

	// record vectors come from Milvus when configured, otherwise from Redis
	var records storage.RecordSource = store
	if cfg.MilvusEnabled() {
		vectors, err := milvus.New(ctx, cfg.Milvus)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Milvus.Addr).Msg("Failed to connect to Milvus")
		}
		records = vectors
	}

	backend, err := manager.New(store, records, cfg.Manager)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage manager")
	}

	runner, err := worker.NewRunner(backend, cfg.Worker)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create job runner")
	}
	dispatcher, err := worker.NewDispatcher(runner, cfg.Worker)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create dispatcher")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := backend.Health(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("Metrics server failed")
		}
	}()

	log.Info().
		Str("redis", cfg.Redis.Addr).
		Bool("milvus", cfg.MilvusEnabled()).
		Str("queue", cfg.Redis.Queue).
		Int("concurrency", cfg.Worker.Concurrency).
		Float64("rate_per_minute", cfg.Worker.RatePerMinute).
		Str("metrics", cfg.MetricsAddr).
		Msg("Clustering worker started")

	if err := dispatcher.Consume(ctx, store); err != nil {
		log.Error().Err(err).Msg("Queue consumer stopped")
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Running jobs were cancelled")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to stop metrics server")
	}
	if err := backend.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close storage")
	}
}
