package common

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ParseTrustedProxies turns CIDRs or bare addresses into prefixes.
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if strings.Contains(value, "/") {
			prefix, err := netip.ParsePrefix(value)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", value, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", value, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// TrustProxies applies X-Forwarded-For, X-Real-IP, X-Forwarded-Host and
// X-Forwarded-Proto only when the direct peer is one of trusted. Requests
// from anywhere else keep their socket address and Host header.
func TrustProxies(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(trusted) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isTrusted(peerAddr(r.RemoteAddr), trusted) {
				r = applyForwarded(r, trusted)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func applyForwarded(r *http.Request, trusted []netip.Prefix) *http.Request {
	if ip := forwardedClient(r.Header, trusted); ip != "" {
		r.RemoteAddr = net.JoinHostPort(ip, "0")
	}
	if host := firstValue(r.Header.Get("X-Forwarded-Host")); host != "" {
		r.Host = host
	}
	switch proto := strings.ToLower(firstValue(r.Header.Get("X-Forwarded-Proto"))); proto {
	case "http", "https":
		r = r.WithContext(withForwardedProto(r.Context(), proto))
	}
	return r
}

// forwardedClient walks X-Forwarded-For from the nearest hop and returns the
// first address that is not itself a trusted proxy.
func forwardedClient(h http.Header, trusted []netip.Prefix) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		var last netip.Addr
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			addr = addr.Unmap()
			last = addr
			if !isTrusted(addr, trusted) {
				return addr.String()
			}
		}
		if last.IsValid() {
			return last.String()
		}
	}
	if addr, err := netip.ParseAddr(strings.TrimSpace(h.Get("X-Real-IP"))); err == nil {
		return addr.Unmap().String()
	}
	return ""
}

func peerAddr(remote string) netip.Addr {
	host, _, err := net.SplitHostPort(strings.TrimSpace(remote))
	if err != nil {
		host = strings.TrimSpace(remote)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	if !addr.IsValid() {
		return false
	}
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func firstValue(header string) string {
	return strings.TrimSpace(strings.Split(header, ",")[0])
}
