package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func serveWith(h Headers, req *http.Request) *httptest.ResponseRecorder {
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHeadersMiddlewareSetsSecurityHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://example.com/api/memo", nil)
	req.TLS = &tls.ConnectionState{}

	rr := serveWith(Headers{Enable: true, EnableHSTS: true, NoStorePrefixes: []string{"/api/"}}, req)

	headers := rr.Result().Header
	require.Equal(t, "nosniff", headers.Get("X-Content-Type-Options"))
	require.Equal(t, "max-age=31536000", headers.Get("Strict-Transport-Security"))
	require.Equal(t, "no-store", headers.Get("Cache-Control"))
}

func TestHeadersMiddlewareLeavesMemosCacheable(t *testing.T) {
	rr := serveWith(Headers{Enable: true, NoStorePrefixes: []string{"/api/"}}, httptest.NewRequest(http.MethodGet, "/memos/memo_1.pdf", nil))
	require.Empty(t, rr.Header().Get("Cache-Control"))
	require.Empty(t, rr.Header().Get("Strict-Transport-Security"), "hsts only applies to tls requests")
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestHeadersMiddlewareDisabled(t *testing.T) {
	rr := serveWith(Headers{Enable: false, EnableHSTS: true}, httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	require.Empty(t, rr.Header().Get("X-Content-Type-Options"))
}
