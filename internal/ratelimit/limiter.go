// Package ratelimit enforces a per-key quota over a sliding 24h window.
package ratelimit

import (
	"context"
	"time"

	"github.com/angelmondragon/platewise-backend/pkg/metrics"
)

// DefaultWindow is the quota period.
const DefaultWindow = 24 * time.Hour

// Decision is the outcome of one CheckAndConsume call.
type Decision struct {
	Allowed   bool
	Remaining int
	Limit     int
}

// Limiter consumes one unit of key's quota when it is available. A rejected
// call consumes nothing.
type Limiter interface {
	CheckAndConsume(ctx context.Context, key string, max int) (Decision, error)
}

type instrumented struct {
	next    Limiter
	metrics *metrics.RateLimitMetrics
}

// WithMetrics counts every decision taken by next.
func WithMetrics(next Limiter, m *metrics.RateLimitMetrics) Limiter {
	if m == nil {
		return next
	}
	return &instrumented{next: next, metrics: m}
}

func (i *instrumented) CheckAndConsume(ctx context.Context, key string, max int) (Decision, error) {
	d, err := i.next.CheckAndConsume(ctx, key, max)
	if err != nil {
		return d, err
	}
	i.metrics.Record(d.Allowed)
	return d, nil
}

func remaining(max, countBefore int) int {
	if r := max - countBefore - 1; r > 0 {
		return r
	}
	return 0
}
