package httpserver

import (
	"net/http"
	"time"
)

// New builds the gateway's HTTP server. Write and idle timeouts are generous
// because confirmed-transaction responses wait on the ledger round trip; the
// per-request deadline is enforced by the router's timeout middleware.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
