package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/memo-api/internal/health"
)

type stubChecker struct {
	redisErr error
	sinkErr  error
}

func (s stubChecker) PingRedis(_ context.Context, _ time.Duration) error {
	return s.redisErr
}

func (s stubChecker) CheckSink(_ context.Context, _ time.Duration) error {
	return s.sinkErr
}

func readyStatus(t *testing.T, handler health.Handler) (int, map[string]string) {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var status map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	return rr.Code, status
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReadySuccess(t *testing.T) {
	code, status := readyStatus(t, health.Handler{Checker: stubChecker{}, RedisTimeout: 50 * time.Millisecond})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]string{"redis": "ok", "sink": "ok"}, status)
}

func TestReadyTreatsDisabledRedisAsHealthy(t *testing.T) {
	code, status := readyStatus(t, health.Handler{Checker: stubChecker{redisErr: health.ErrDisabled}})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "disabled", status["redis"])
}

func TestReadyFailure(t *testing.T) {
	code, status := readyStatus(t, health.Handler{Checker: stubChecker{sinkErr: errors.New("memo dir not writable")}})
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "memo dir not writable", status["sink"])
}

func TestReadyWithoutChecker(t *testing.T) {
	code, _ := readyStatus(t, health.Handler{})
	require.Equal(t, http.StatusServiceUnavailable, code)
}
