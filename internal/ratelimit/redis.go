package ratelimit

import (
	"context"
	"time"

	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
)

type windowStore interface {
	SlidingWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration, now time.Time) (bool, int64, error)
}

// Redis shares quotas between API replicas through a sorted set per key.
type Redis struct {
	store  windowStore
	window time.Duration
	now    func() time.Time
}

// NewRedis builds a limiter on top of pkg/redis.
func NewRedis(store windowStore, window time.Duration) *Redis {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Redis{store: store, window: window, now: time.Now}
}

func (r *Redis) CheckAndConsume(ctx context.Context, key string, max int) (Decision, error) {
	allowed, before, err := r.store.SlidingWindowAllow(ctx, key, int64(max), r.window, r.now())
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limit store")
	}
	if !allowed {
		return Decision{Allowed: false, Remaining: 0, Limit: max}, nil
	}
	return Decision{Allowed: true, Remaining: remaining(max, int(before)), Limit: max}, nil
}
