package middleware

import (
	"context"

	"github.com/angelmondragon/platewise-backend/internal/ratelimit"
)

type contextKey string

const (
	ctxOwnerID   contextKey = "owner_id"
	ctxRateLimit contextKey = "rate_limit"
)

func OwnerIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxOwnerID).(string); ok {
		return v
	}
	return ""
}

// WithOwnerID injects the owner identifier into the context.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxOwnerID, ownerID)
}

// RateLimitFromContext returns the decision taken for this request, if any.
func RateLimitFromContext(ctx context.Context) (ratelimit.Decision, bool) {
	if ctx == nil {
		return ratelimit.Decision{}, false
	}
	d, ok := ctx.Value(ctxRateLimit).(ratelimit.Decision)
	return d, ok
}

func withRateLimit(ctx context.Context, d ratelimit.Decision) context.Context {
	return context.WithValue(ctx, ctxRateLimit, d)
}
