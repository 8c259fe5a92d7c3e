package health

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/memo-api/internal/common"
)

var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady toggles the readiness flag; the server clears it while draining.
func SetReady(v bool) {
	ready.Store(v)
}

// IsReady reports the current readiness flag.
func IsReady() bool {
	return ready.Load()
}

// Checker represents dependencies that can be checked for readiness.
type Checker interface {
	PingRedis(ctx context.Context, timeout time.Duration) error
	CheckSink(ctx context.Context, timeout time.Duration) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker      Checker
	RedisTimeout time.Duration
	SinkTimeout  time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency checks.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !IsReady() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	if h.Checker == nil {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "dependencies unavailable"})
		return
	}
	ctx := r.Context()
	status := map[string]string{
		"redis": checkWithin(ctx, h.redisTimeout(), h.Checker.PingRedis),
		"sink":  checkWithin(ctx, h.sinkTimeout(), h.Checker.CheckSink),
	}
	code := http.StatusOK
	for _, v := range status {
		if v != "ok" && v != "disabled" {
			code = http.StatusServiceUnavailable
		}
	}
	common.JSON(w, code, status)
}

func checkWithin(ctx context.Context, timeout time.Duration, fn func(context.Context, time.Duration) error) string {
	if err := fn(ctx, timeout); err != nil {
		if errors.Is(err, ErrDisabled) {
			return "disabled"
		}
		return err.Error()
	}
	return "ok"
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}

func (h Handler) sinkTimeout() time.Duration {
	if h.SinkTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.SinkTimeout
}
