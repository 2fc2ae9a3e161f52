package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout bounds each request's context. Ledger submissions themselves are not
// cancellable once submitted; the bound applies to the await.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
