package security

import (
	"net/http"
	"strconv"
	"strings"
)

// Headers configures security headers for API responses and served memos.
type Headers struct {
	Enable     bool
	EnableHSTS bool
	HSTSMaxAge int
	// NoStorePrefixes lists path prefixes whose responses must not be cached.
	NoStorePrefixes []string
}

// Middleware attaches standard security headers to each response.
func (h Headers) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.Enable {
			next.ServeHTTP(w, r)
			return
		}
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "no-referrer")
		headers.Set("Cross-Origin-Resource-Policy", "cross-origin")
		if h.EnableHSTS && r.TLS != nil {
			maxAge := h.HSTSMaxAge
			if maxAge <= 0 {
				maxAge = 31536000
			}
			headers.Set("Strict-Transport-Security", "max-age="+strconv.Itoa(maxAge))
		}
		for _, prefix := range h.NoStorePrefixes {
			if prefix != "" && strings.HasPrefix(r.URL.Path, prefix) {
				headers.Set("Cache-Control", "no-store")
				break
			}
		}
		next.ServeHTTP(w, r)
	})
}
