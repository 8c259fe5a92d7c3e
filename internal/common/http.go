package common

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
)

type forwardedProtoKey struct{}

// ClientIP returns the peer address of the request. Forwarded headers are
// only honoured once TrustProxies has rewritten RemoteAddr for a trusted hop.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// BaseURL reconstructs scheme://host for the incoming request. The scheme
// comes from the TLS state or, behind a trusted proxy, X-Forwarded-Proto.
func BaseURL(r *http.Request) string {
	if r == nil {
		return ""
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto, ok := r.Context().Value(forwardedProtoKey{}).(string); ok && proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func withForwardedProto(ctx context.Context, proto string) context.Context {
	return context.WithValue(ctx, forwardedProtoKey{}, proto)
}

// ResolveURL makes ref absolute against base. Already absolute references are
// returned unchanged.
func ResolveURL(base, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil || parsed.IsAbs() || strings.TrimSpace(base) == "" {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(parsed).String()
}
