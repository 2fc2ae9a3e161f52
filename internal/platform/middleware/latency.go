package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"chaintrail/internal/platform/metrics"
)

// Latency records request durations against the matched chi route pattern so
// per-product paths do not explode label cardinality.
func Latency(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequestLatency(route, r.Method, time.Since(start))
		})
	}
}
