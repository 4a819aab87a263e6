// Package metrics exposes Prometheus counters for the job runtime and
// the HTTP surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process-wide collectors. All binaries share the
// same shape; a worker simply never touches the HTTP counter.
type Metrics struct {
	registry *prometheus.Registry

	jobsTotal    *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	queueDepth   *prometheus.GaugeVec
	httpRequests *prometheus.CounterVec
}

// New creates a metrics set on its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meld_jobs_total",
			Help: "Jobs processed, by function and outcome.",
		}, []string{"func", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meld_job_duration_seconds",
			Help:    "Wall-clock job duration.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"func"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meld_queue_depth",
			Help: "Jobs waiting per queue.",
		}, []string{"queue"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meld_http_requests_total",
			Help: "HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(m.jobsTotal, m.jobDuration, m.queueDepth, m.httpRequests)
	return m
}

// ObserveJob records one finished job run.
func (m *Metrics) ObserveJob(funcName, status string, duration time.Duration) {
	m.jobsTotal.WithLabelValues(funcName, status).Inc()
	m.jobDuration.WithLabelValues(funcName).Observe(duration.Seconds())
}

// SetQueueDepth records the waiting job count of a queue.
func (m *Metrics) SetQueueDepth(queue string, depth int64) {
	m.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// ObserveRequest records one handled HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
