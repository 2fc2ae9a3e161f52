package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chaintrail/internal/platform/metrics"
	"chaintrail/internal/platform/middleware"
)

const requestTimeout = 30 * time.Second

// NewRouter wires all endpoints. Token minting, health, and metrics are open;
// everything else sits behind bearer-token identity.
func NewRouter(h *Handler, validator middleware.IdentityValidator, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Latency(m))

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Post("/auth/token", h.handleToken)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireIdentity(validator, logger))

		r.Post("/role", h.handleSelectRole)
		r.Get("/role", h.handleGetRole)

		r.Route("/products", func(r chi.Router) {
			r.Post("/", h.handleAddProduct)
			r.Get("/", h.handleListProducts)
			r.Route("/{productID}", func(r chi.Router) {
				r.Get("/", h.handleGetProduct)
				r.Get("/history", h.handleHistory)
				r.Post("/transfer", h.handleTransfer)
				r.Post("/accept", h.handleAccept)
				r.Post("/receive", h.handleReceive)
				r.Post("/availability", h.handleAvailability)
				r.Post("/counterfeit", h.handleCounterfeit)
			})
		})

		r.Get("/audit", h.handleAuditLog)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
