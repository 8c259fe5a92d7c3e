package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker hands out Redis-backed claims on short-lived keys. A claim is owned
// by whoever set the key first; it expires after its TTL and is never renewed.
type Locker struct {
	R      redis.Cmdable
	Prefix string
}

// Claim tries to take key for ttl. It returns a release func when this
// caller owns the claim, or ok=false when someone else already holds it.
func (l Locker) Claim(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), ok bool, err error) {
	if l.R == nil {
		return nil, false, errors.New("lock: redis client not configured")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	fullKey := l.Prefix + key
	ok, err = l.R.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func(ctx context.Context) { l.release(ctx, fullKey, token) }, true, nil
}

func (l Locker) release(ctx context.Context, key, token string) {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
	_ = l.R.Eval(ctx, script, []string{key}, token).Err()
}
