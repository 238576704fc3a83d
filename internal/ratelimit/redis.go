package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter keyed per caller. The first
// increment in a window sets the expiry; the window slides only when the
// key expires.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	logger *slog.Logger
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, logger *slog.Logger) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "ratelimit:payment_intent:",
		logger: logger,
	}
}

func (l *RedisLimiter) CheckAndConsume(ctx context.Context, key string) (bool, error) {
	redisKey := l.prefix + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			l.logger.Warn("failed to set rate limit expiry", "key", redisKey, "error", err)
		}
	}

	exceeded := count > int64(l.limit)
	if exceeded {
		l.logger.Warn("rate limit exceeded",
			"key", key,
			"count", count,
			"limit", l.limit)
	}

	return exceeded, nil
}
