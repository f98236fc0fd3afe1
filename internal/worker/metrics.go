package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuzzgroup_jobs_total",
		Help: "Total number of clustering jobs by final status",
	}, []string{"status"})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fuzzgroup_job_duration_seconds",
		Help:    "Duration of clustering jobs, readiness wait included",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	})

	jobIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fuzzgroup_job_iterations",
		Help:    "Number of iterations a clustering job ran",
		Buckets: prometheus.LinearBuckets(5, 5, 10),
	})

	finalLoss = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fuzzgroup_job_final_loss",
		Help: "Loss of the last finished clustering job",
	})

	activeJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fuzzgroup_active_jobs",
		Help: "Number of clustering jobs currently running",
	})

	queuedJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fuzzgroup_queued_jobs",
		Help: "Number of clustering jobs accepted but not yet started",
	})

	persistRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fuzzgroup_result_persist_retries_total",
		Help: "Total number of retried result writes",
	})
)
