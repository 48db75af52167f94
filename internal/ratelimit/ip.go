package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller address from proxy headers, then fallback.
func ClientIP(r *http.Request, fallback string) string {
	if r != nil {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
				return first
			}
		}
		for _, h := range []string{"X-Real-IP", "CF-Connecting-IP"} {
			if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
				return v
			}
		}
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return fallback
	}
	if r != nil {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
	}
	return unknownIP
}
