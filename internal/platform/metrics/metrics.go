package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trademate"

// JobMetrics records outcomes of externally triggered batch jobs such as stale cart reclaim.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	items    *prometheus.CounterVec
}

// NewJobMetrics registers the job metrics on reg. A nil registerer yields a no-op recorder.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Duration of batch jobs in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_success_total",
		Help:      "Batch job runs that completed without item failures.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_failure_total",
		Help:      "Batch job runs with at least one failed item.",
	}, []string{"job"})
	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_items_total",
		Help:      "Items processed by batch jobs, by outcome.",
	}, []string{"job", "outcome"})
	reg.MustRegister(duration, success, failure, items)
	return &JobMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		items:    items,
	}
}

// ObserveRun records one job run with its item counts.
func (m *JobMetrics) ObserveRun(job string, duration time.Duration, succeeded, failed int) {
	if m == nil || m.duration == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(duration.Seconds())
	m.items.WithLabelValues(job, "succeeded").Add(float64(succeeded))
	m.items.WithLabelValues(job, "failed").Add(float64(failed))
	if failed > 0 {
		m.failure.WithLabelValues(job).Inc()
		return
	}
	m.success.WithLabelValues(job).Inc()
}

// Handler serves the metrics gathered by g in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
