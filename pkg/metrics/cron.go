package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cron run results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// CronJobMetrics records runs of the background worker's jobs.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	items       *prometheus.CounterVec
}

// NewCronJobMetrics registers the cron_job_* series on reg. A nil reg yields a
// recorder that drops everything.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Cron job runs by result.",
		}, []string{"job", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_duration_seconds",
			Help:    "Duration of cron job runs in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}, []string{"job"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_items_total",
			Help: "Records handled by batch cron jobs, by outcome.",
		}, []string{"job", "outcome"}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess, m.items)
	return m
}

// ObserveRun records one finished run. finished stamps the success gauge.
func (c *CronJobMetrics) ObserveRun(job string, took time.Duration, finished time.Time, err error) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		c.runs.WithLabelValues(job, ResultFailure).Inc()
		return
	}
	c.runs.WithLabelValues(job, ResultSuccess).Inc()
	c.lastSuccess.WithLabelValues(job).Set(float64(finished.Unix()))
}

// IncItem counts one record processed by a batch job.
func (c *CronJobMetrics) IncItem(job, outcome string) {
	if c == nil || c.items == nil {
		return
	}
	c.items.WithLabelValues(normalizeLabel(job), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
