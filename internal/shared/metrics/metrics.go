package metrics

import (
	"database/sql"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector exported on /metrics.
var Registry = prometheus.NewRegistry()

var (
	jobsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobs_created_total",
		Help: "Total analysis jobs created",
	})
	jobsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobs_completed_total",
		Help: "Total analysis jobs completed",
	})
	jobsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobs_failed_total",
		Help: "Total analysis jobs failed",
	})
	jobsCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobs_cancelled_total",
		Help: "Total analysis jobs cancelled by their owner",
	})
	jobsStaleWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobs_stale_writes_total",
		Help: "Job writes rejected because the job left the expected state",
	})
	jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "jobs_in_flight",
		Help: "Background executions currently running",
	})
	jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "job_duration_ms",
		Help:    "Job processing duration in milliseconds",
		Buckets: []float64{1000, 5000, 10000, 30000, 60000, 120000, 300000},
	})
	rateLimitDenied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_denied_total",
		Help: "Job admissions denied by the rate limiter",
	}, []string{"key_kind"})
	workerMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_messages_total",
		Help: "Queue messages handled by the worker",
	}, []string{"outcome"})
	httpPanics = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_panics_total",
		Help: "Handler panics recovered by the router",
	}, []string{"route"})
)

func init() {
	Registry.MustRegister(
		jobsCreated,
		jobsCompleted,
		jobsFailed,
		jobsCancelled,
		jobsStaleWrites,
		jobsInFlight,
		jobDuration,
		rateLimitDenied,
		workerMessages,
		httpPanics,
	)
}

func IncJobsCreated()     { jobsCreated.Inc() }
func IncJobsCompleted()   { jobsCompleted.Inc() }
func IncJobsFailed()      { jobsFailed.Inc() }
func IncJobsCancelled()   { jobsCancelled.Inc() }
func IncJobsStaleWrites() { jobsStaleWrites.Inc() }

// TrackInFlight increments the in-flight gauge and returns the matching decrement.
func TrackInFlight() func() {
	jobsInFlight.Inc()
	return jobsInFlight.Dec
}

// ObserveJobDurationMs records a job duration in milliseconds.
func ObserveJobDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	jobDuration.Observe(value)
}

// IncRateLimitDenied counts a denial; kind is "user" or "ip".
func IncRateLimitDenied(kind string) {
	rateLimitDenied.WithLabelValues(kind).Inc()
}

// IncWorkerMessage counts a worker message by outcome.
func IncWorkerMessage(outcome string) {
	workerMessages.WithLabelValues(outcome).Inc()
}

// IncHTTPPanic counts a recovered panic on route.
func IncHTTPPanic(route string) {
	httpPanics.WithLabelValues(route).Inc()
}

// RegisterDBStats exports pool statistics for db under the "jobfit" label.
// A second registration is ignored.
func RegisterDBStats(db *sql.DB) error {
	err := Registry.Register(collectors.NewDBStatsCollector(db, "jobfit"))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
