package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/angelmondragon/platewise-backend/api/responses"
	"github.com/angelmondragon/platewise-backend/internal/ratelimit"
	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
)

// RetryAfter is the hint returned with a 429 from the daily quota.
const RetryAfter = "24 hours"

// DailyRateLimit spends one unit of the client IP's daily quota per request.
// The client is the socket peer unless that peer is one of trusted, in which
// case X-Forwarded-For is walked from the right past trusted hops. The
// decision is stored in the context so handlers can echo the remaining quota.
func DailyRateLimit(limiter ratelimit.Limiter, max int, trusted []netip.Prefix, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || max <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := clientIP(r, trusted)

			decision, err := limiter.CheckAndConsume(ctx, ip, max)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if !decision.Allowed {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"ip":    ip,
						"limit": max,
						"path":  r.URL.Path,
					})
					logg.Warn(logCtx, "ratelimit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "daily analysis limit reached").
					WithDetails(map[string]any{
						"remaining_requests": 0,
						"limit":              max,
						"retry_after":        RetryAfter,
					}))
				return
			}

			next.ServeHTTP(w, r.WithContext(withRateLimit(ctx, decision)))
		})
	}
}

func clientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	addr, err := netip.ParseAddr(peer)
	if err != nil || !isTrusted(addr, trusted) {
		return peer
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			// anything left of a garbled hop was not written by our proxies
			break
		}
		if !isTrusted(hop, trusted) {
			return hop.Unmap().String()
		}
	}
	return peer
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
