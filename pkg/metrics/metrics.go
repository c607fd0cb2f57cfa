package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics tracks fulfillment throughput per worker process.
type WorkerMetrics struct {
	JobsProcessed *prometheus.CounterVec
	JobsStalled   prometheus.Counter
	DurationMS    *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smartmart",
		Subsystem: service,
		Name:      "jobs_processed_total",
		Help:      "Jobs handled by this worker, by outcome.",
	}, []string{"outcome"})
	stalled := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "smartmart",
		Subsystem: service,
		Name:      "jobs_stalled_reclaimed_total",
		Help:      "Stalled jobs this worker returned to the queue.",
	})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "smartmart",
		Subsystem: service,
		Name:      "job_duration_ms",
		Help:      "Job handling latency in milliseconds.",
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	}, []string{"outcome"})

	prometheus.MustRegister(processed, stalled, duration)
	return &WorkerMetrics{JobsProcessed: processed, JobsStalled: stalled, DurationMS: duration}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
