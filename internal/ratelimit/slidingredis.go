package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter implements a sliding window rate limiter backed by Redis sorted sets.
// Every call is recorded, including rejected ones, so a client that keeps
// hammering stays limited until it backs off for a full window.
type Limiter struct {
	Client redis.Cmdable
	Prefix string
	Now    func() time.Time
}

// Allow registers an event for key and reports whether it fits in the window.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (Decision, error) {
	now := l.now()
	if l.Client == nil || max <= 0 || window <= 0 {
		return Decision{Allowed: true, Limit: max, Remaining: max, ResetAt: now.Add(window)}, nil
	}

	cutoff := now.Add(-window).UnixNano()
	redisKey := l.Prefix + key
	member := key + ":" + uuid.NewString()

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", "("+strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	countCmd := pipe.ZCard(ctx, redisKey)
	oldestCmd := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.PExpire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Limit: max, ResetAt: now.Add(window)}, fmt.Errorf("ratelimit %s: %w", key, err)
	}

	current := int(countCmd.Val())
	resetAt := now.Add(window)
	if oldest := oldestCmd.Val(); len(oldest) == 1 {
		resetAt = time.Unix(0, int64(oldest[0].Score)).Add(window)
	}
	remaining := max - current
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   current <= max,
		Limit:     max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

func (l Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}
