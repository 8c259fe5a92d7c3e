package obs_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/memo-api/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("memo", []float64{1, 10}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{}}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/memo", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/api/memo"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/api/memo", "400")))
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Equal(t, 1, testutil.CollectAndCount(metrics.RespBytes))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.InFlight))
}

func TestHTTPMetricsSkipPaths(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("memo", nil, registry)
	handler := obs.HTTPObs{Metrics: metrics, SkipPaths: []string{"/metrics"}}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Zero(t, testutil.CollectAndCount(metrics.ReqTotal))
}

func TestParseBucketsCSV(t *testing.T) {
	require.Nil(t, obs.ParseBucketsCSV(" "))
	require.Equal(t, []float64{5, 50.5}, obs.ParseBucketsCSV("5, x, -1, 50.5,"))
	require.Equal(t, []float64{100, 2500, 30000}, obs.ParseBucketsCSV("30000,100,NaN,2500,100,+Inf"))
}

func TestNewHTTPMetricsDefaultsAndReuse(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("memo", nil, registry)
	second := obs.NewHTTPMetrics("memo", nil, registry)
	require.Same(t, first.ReqTotal, second.ReqTotal)
	require.Same(t, first.RespBytes, second.RespBytes)

	first.ReqDur.WithLabelValues(http.MethodGet, "/api/memo").Observe(12000)
	families, err := registry.Gather()
	require.NoError(t, err)
	var bounds []float64
	for _, mf := range families {
		if mf.GetName() != "memo_http_request_duration_ms" {
			continue
		}
		for _, b := range mf.GetMetric()[0].GetHistogram().GetBucket() {
			bounds = append(bounds, b.GetUpperBound())
		}
	}
	require.Equal(t, obs.DefaultLatencyBucketsMs, bounds)
}

func TestDomainMetricsRegistered(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("memo", registry)
	require.NotNil(t, obs.MemoRenderTotal)
	require.NotNil(t, obs.MemoDeliveryTotal)

	before := testutil.ToFloat64(obs.MemoDeliveryTotal.WithLabelValues("local", "ok"))
	obs.MemoDeliveryTotal.WithLabelValues("local", "ok").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(obs.MemoDeliveryTotal.WithLabelValues("local", "ok")))
}
