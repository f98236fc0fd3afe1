package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Store operation metrics
	StoreOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuzzgroup_store_operations_total",
		Help: "Total number of store operations",
	}, []string{"store", "operation", "status"})

	StoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fuzzgroup_store_latency_seconds",
		Help:    "Latency of store operations",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"store", "operation"})

	PayloadBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fuzzgroup_store_payload_bytes",
		Help:    "Size of payloads written to the store after compression",
		Buckets: prometheus.ExponentialBuckets(256, 4, 8),
	}, []string{"store", "kind"})

	// Record cache metrics
	RecordCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fuzzgroup_record_cache_hits_total",
		Help: "Total number of record cache hits",
	})

	RecordCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fuzzgroup_record_cache_misses_total",
		Help: "Total number of record cache misses",
	})

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fuzzgroup_circuit_breaker_state",
		Help: "Current state of circuit breakers (0=closed, 1=open)",
	}, []string{"store"})

	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuzzgroup_circuit_breaker_trips_total",
		Help: "Total number of circuit breaker trips",
	}, []string{"store"})

	HealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fuzzgroup_store_healthy",
		Help: "Result of the last health check (1=healthy)",
	}, []string{"store"})
)

// Observe records the outcome and latency of a store operation started at start
func Observe(store, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StoreOperations.WithLabelValues(store, operation, status).Inc()
	StoreLatency.WithLabelValues(store, operation).Observe(time.Since(start).Seconds())
}
