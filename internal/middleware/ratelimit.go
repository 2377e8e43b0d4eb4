package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/leephanna/sign-in-and-billing/pkg/config"
	"github.com/leephanna/sign-in-and-billing/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const redisTimeout = 250 * time.Millisecond

// DistributedRateLimiter is a fixed-window limiter shared across instances through Redis.
// It satisfies echo's RateLimiterStore.
type DistributedRateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewDistributedRateLimiter creates a Redis-backed limiter allowing limit requests per window
func NewDistributedRateLimiter(client *redis.Client, limit int, window time.Duration, prefix string) *DistributedRateLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &DistributedRateLimiter{
		redis:  client,
		limit:  limit,
		window: window,
		prefix: prefix,
		now:    time.Now,
	}
}

// Allow counts a request for identifier. Redis errors allow the request and are returned.
func (rl *DistributedRateLimiter) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	bucket := rl.now().UnixNano() / int64(rl.window)
	key := fmt.Sprintf("%s:%s:%d", rl.prefix, identifier, bucket)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.limit), nil
}

// NewRateLimitStore returns the Redis limiter when a client is given and
// echo's in-memory store otherwise
func NewRateLimitStore(cfg config.RateLimitConfig, client *redis.Client) echomw.RateLimiterStore {
	if client != nil {
		return NewDistributedRateLimiter(client, cfg.RequestsPerWindow, cfg.Window, "harmonia:ratelimit")
	}
	return echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		Burst:     cfg.RequestsPerWindow,
		ExpiresIn: 3 * cfg.Window,
	})
}

// RateLimit limits requests per client IP using store
func RateLimit(store echomw.RateLimiterStore) echo.MiddlewareFunc {
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health"
		},
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "rate_limited"})
		},
	})
}

// LogStoreErrors wraps a store so that fail-open errors are logged
func LogStoreErrors(store echomw.RateLimiterStore) echomw.RateLimiterStore {
	return storeLogger{store}
}

type storeLogger struct {
	echomw.RateLimiterStore
}

func (s storeLogger) Allow(identifier string) (bool, error) {
	allowed, err := s.RateLimiterStore.Allow(identifier)
	if err != nil {
		logger.GetLogger().Warn("Rate limit store unavailable, allowing request", zap.Error(err))
	}
	return allowed, err
}
