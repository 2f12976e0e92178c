package httputil

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the originating client address for a request that
// may have crossed one or more reverse proxies. The first entry of
// X-Forwarded-For wins, then X-Real-IP, then the socket's RemoteAddr
// with its port stripped. The result feeds the rate limiter and the
// opt-in audit trail; it is best effort, not a trusted identity.
func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr carried no port; hand it back unchanged.
		return r.RemoteAddr
	}
	return host
}
