package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsflow_queue_jobs_enqueued_total",
		Help: "Jobs added per queue.",
	}, []string{"queue"})

	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsflow_queue_jobs_processed_total",
		Help: "Job outcomes per queue (completed, retried, failed).",
	}, []string{"queue", "outcome"})

	jobsStalled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsflow_queue_jobs_stalled_total",
		Help: "Jobs recovered after their worker lease expired.",
	}, []string{"queue"})

	activeWorkers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "opsflow_queue_active_workers",
		Help: "Worker slots currently executing a job.",
	}, []string{"queue"})
)
