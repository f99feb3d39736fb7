package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/scanforge/api/internal/metrics"
)

// Metrics records request counts and latency. Paths are recorded as the
// route pattern the caller passes through normalizePath, keeping label
// cardinality bounded even with per-scan URLs.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			path := normalizePath(r.URL.Path)
			metrics.HTTPRequestsTotal.WithLabelValues(
				r.Method, path, strconv.Itoa(wrapped.statusCode),
			).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(
				r.Method, path,
			).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath collapses scan-id path segments into a placeholder.
func normalizePath(path string) string {
	const prefix = "/api/v1/scans/"
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		rest := path[len(prefix):]
		for i := 0; i < len(rest); i++ {
			if rest[i] == '/' {
				return prefix + "{id}" + rest[i:]
			}
		}
		return prefix + "{id}"
	}
	return path
}
