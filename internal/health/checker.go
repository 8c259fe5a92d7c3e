package health

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/memo-api/internal/delivery"
)

// ErrDisabled marks an optional dependency that is not configured.
var ErrDisabled = errors.New("disabled")

// Dependencies checks the service's runtime dependencies. A nil Redis client is
// reported as disabled rather than failing readiness.
type Dependencies struct {
	Redis redis.Cmdable
	Sink  delivery.Sink
}

// PingRedis pings Redis within timeout.
func (p Dependencies) PingRedis(ctx context.Context, timeout time.Duration) error {
	if p.Redis == nil {
		return ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Redis.Ping(ctx).Err()
}

// CheckSink asks the delivery sink whether it can accept documents.
func (p Dependencies) CheckSink(ctx context.Context, timeout time.Duration) error {
	if p.Sink == nil {
		return errors.New("delivery sink not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Sink.Check(ctx)
}
