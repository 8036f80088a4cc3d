package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Vision analysis outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeDegraded  = "degraded"
	DecisionAllowed  = "allowed"
	DecisionRejected = "rejected"
)

// VisionMetrics tracks calls to the vision model.
type VisionMetrics struct {
	total    *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewVisionMetrics registers vision_analysis_total and
// vision_analysis_duration_seconds on reg.
func NewVisionMetrics(reg prometheus.Registerer) *VisionMetrics {
	if reg == nil {
		return &VisionMetrics{}
	}
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_analysis_total",
		Help: "Vision analysis calls by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vision_analysis_duration_seconds",
		Help:    "Latency of vision analysis calls in seconds.",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
	})
	reg.MustRegister(total, duration)
	return &VisionMetrics{total: total, duration: duration}
}

// Observe records one finished call.
func (v *VisionMetrics) Observe(outcome string, took time.Duration) {
	if v == nil || v.total == nil {
		return
	}
	v.total.WithLabelValues(normalizeLabel(outcome)).Inc()
	v.duration.Observe(took.Seconds())
}

// IncDegraded counts a failure that was answered with the default result.
func (v *VisionMetrics) IncDegraded() {
	if v == nil || v.total == nil {
		return
	}
	v.total.WithLabelValues(OutcomeDegraded).Inc()
}

// RateLimitMetrics counts limiter decisions.
type RateLimitMetrics struct {
	decisions *prometheus.CounterVec
}

// NewRateLimitMetrics registers ratelimit_decisions_total on reg.
func NewRateLimitMetrics(reg prometheus.Registerer) *RateLimitMetrics {
	if reg == nil {
		return &RateLimitMetrics{}
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_decisions_total",
		Help: "Rate limiter decisions for the public analysis endpoint.",
	}, []string{"decision"})
	reg.MustRegister(decisions)
	return &RateLimitMetrics{decisions: decisions}
}

// Record counts an allow or reject decision.
func (r *RateLimitMetrics) Record(allowed bool) {
	if r == nil || r.decisions == nil {
		return
	}
	decision := DecisionRejected
	if allowed {
		decision = DecisionAllowed
	}
	r.decisions.WithLabelValues(decision).Inc()
}
