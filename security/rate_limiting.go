package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
	"smarttrain/internal/status"
)

// RateLimiter counts requests per client in fixed one minute windows kept in
// redis, so the limit holds across replicas.
type RateLimiter struct {
	redis    redis.Cmdable
	window   time.Duration
	clientIP func(e *core.RequestEvent) string
}

func NewRateLimiter(redisClient redis.Cmdable) *RateLimiter {
	return &RateLimiter{
		redis:    redisClient,
		window:   time.Minute,
		clientIP: func(e *core.RequestEvent) string { return e.RealIP() },
	}
}

// countRequest bumps the window counter and starts its expiry on the first
// hit in a single round trip, so a counter never outlives its window.
var countRequest = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

func rateKey(scope, client string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, client)
}

// Allow records one request for client under scope and reports whether it is
// within max requests per window.
func (r *RateLimiter) Allow(ctx context.Context, scope, client string, max int) (bool, error) {
	key := rateKey(scope, client)

	count, err := countRequest.Run(ctx, r.redis, []string{key}, r.window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return count <= int64(max), nil
}

// Limit rejects a client IP with 429 once it exceeds max requests per minute
// on the routes it is bound to. Redis failures let the request through.
func (r *RateLimiter) Limit(scope string, max int) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		ip := r.clientIP(e)

		ok, err := r.Allow(e.Request.Context(), scope, ip, max)
		if err != nil {
			slog.Warn("Rate limiter unavailable", "error", err, "scope", scope)
			return e.Next()
		}
		if !ok {
			slog.Warn("Rate limit exceeded", "scope", scope, "ip", ip)
			httpStatus, body := status.ToResponse(status.ErrRateLimited)
			return e.JSON(httpStatus, body)
		}
		return e.Next()
	}
}

// AntiBot turns away clients announcing themselves as crawlers.
func (r *RateLimiter) AntiBot() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			httpStatus, body := status.ToResponse(status.ErrForbidden)
			return e.JSON(httpStatus, body)
		}
		return e.Next()
	}
}

func isSuspiciousUserAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, pattern := range []string{"bot", "crawler", "spider", "scraper"} {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
