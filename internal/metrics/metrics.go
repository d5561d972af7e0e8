// Package metrics defines the Prometheus metrics of the coordinator and workers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "ftsbench"

	LabelMode   = "mode"
	LabelStatus = "status"

	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// JobsDispatched counts jobs handed to a cluster, including resolved failures.
	JobsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_dispatched_total",
		Help:      "Total number of benchmark jobs dispatched",
	}, []string{LabelMode})

	// JobsCompleted counts collected results by outcome.
	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_completed_total",
		Help:      "Total number of benchmark job results collected",
	}, []string{LabelMode, LabelStatus})

	// JobWait is the time the collector waited for each result.
	JobWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_wait_seconds",
		Help:      "Time spent waiting for a benchmark job result",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{LabelMode})

	// WorkerJobsInProgress is the number of jobs a worker is evaluating.
	WorkerJobsInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_jobs_in_progress",
		Help:      "Number of benchmark jobs currently evaluated by this worker",
	})
)
