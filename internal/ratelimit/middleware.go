package ratelimit

import (
	"net"
	"net/http"

	"github.com/meridian-pim/meridian/internal/platform/httpx"
)

// Middleware throttles a route keyed by (client IP, path). Mount it on
// public mutation endpoints.
func Middleware(limiter *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r) + ":" + r.URL.Path
			if err := limiter.Check(r.Context(), key); err != nil {
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
