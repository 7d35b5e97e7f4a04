package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"leadchat_backend/platform/config"
	"leadchat_backend/platform/logger"
)

// RateLimiter caps how many messages per sender reach the classifier and
// the agent inside one window.
type RateLimiter interface {
	Allow(ctx context.Context, sender string) (bool, error)
}

// RedisRateLimiter is a fixed-window counter keyed by sender. The window
// starts at the first message and the key expires with it, so a burst at
// a window boundary can see at most 2x the cap.
type RedisRateLimiter struct {
	rdb    redis.UniversalClient
	limit  int
	window time.Duration
	log    *logger.Logger
}

func NewRedisRateLimiter(rdb redis.UniversalClient, cfg config.RateLimitConfig, log *logger.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{
		rdb:    rdb,
		limit:  cfg.GetSenderRateLimit(),
		window: cfg.GetSenderRateWindow(),
		log:    log,
	}
}

// Allow counts this message against the sender's window. Redis being
// unreachable fails open: dropping real conversations is worse than
// letting a burst through.
func (l *RedisRateLimiter) Allow(ctx context.Context, sender string) (bool, error) {
	key := fmt.Sprintf("engine:ratelimit:%s", sender)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing message", "sender", sender, "error", err)
		return true, nil
	}

	if count == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			l.log.Warn("rate limiter expire failed", "sender", sender, "error", err)
		}
	}

	if count > int64(l.limit) {
		l.log.RateLimitExceeded(sender, int(count), l.limit)
		return false, nil
	}

	return true, nil
}
