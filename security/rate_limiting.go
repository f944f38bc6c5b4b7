package security

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

func rateKey(scope, identity string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, identity)
}

// Allow counts one hit against scope/identity in a fixed window and reports
// whether the hit is within limit.
func (r *RateLimiter) Allow(ctx context.Context, scope, identity string, limit int64, window time.Duration) (bool, error) {
	key := rateKey(scope, identity)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire %s: %w", key, err)
		}
	}

	return count <= limit, nil
}

// Limit rejects requests once the caller exceeds limit hits per window.
// Authenticated callers are keyed by record id, everyone else by IP. Redis
// failures let the request through.
func (r *RateLimiter) Limit(scope string, limit int64, window time.Duration) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		identity := e.RealIP()
		if e.Auth != nil {
			identity = "user:" + e.Auth.Id
		}

		allowed, err := r.Allow(e.Request.Context(), scope, identity, limit, window)
		if err != nil {
			e.App.Logger().Warn("Rate limiter unavailable", "scope", scope, "error", err)
			return e.Next()
		}
		if !allowed {
			return e.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return e.Next()
	}
}

// AntiBot rejects well-known crawler user agents.
func (r *RateLimiter) AntiBot() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if IsSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return e.JSON(http.StatusForbidden, map[string]string{
				"error": "Access denied",
			})
		}
		return e.Next()
	}
}

func IsSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	lower := strings.ToLower(ua)
	for _, pattern := range suspicious {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
