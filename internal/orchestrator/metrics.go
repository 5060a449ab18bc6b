package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xenlix/visibility-engine/internal/resilience"
)

var (
	jobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "visibility_jobs_completed_total",
		Help: "Collection jobs that reached the completed state.",
	})
	jobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "visibility_jobs_failed_total",
		Help: "Collection jobs that reached the failed state, including requeues.",
	})
	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "visibility_job_duration_seconds",
		Help:    "Wall time spent processing one collection job.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	jobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "visibility_jobs_active",
		Help: "Collection jobs currently being processed.",
	})
	collectorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visibility_collector_requests_total",
		Help: "Engine collection calls by engine and outcome.",
	}, []string{"engine", "outcome"})
)

// outcomeLabel maps a collection error onto the metric's outcome label.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case resilience.IsRateLimited(err):
		return "rate_limited"
	case resilience.IsParse(err):
		return "parse_error"
	case resilience.IsValidation(err):
		return "validation"
	case resilience.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
