// Package api exposes the intake HTTP surface: the Lex fulfillment hook,
// DLQ reprocessing, health probes and Prometheus metrics.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps are the collaborators behind the routes. DLQ and DB are optional; a
// nil DLQ leaves the reprocess route unregistered and a nil DB skips the
// database readiness check.
type Deps struct {
	Lex   LexResponder
	DLQ   Reprocessor
	Queue QueueProber
	DB    Pinger
}

// NewRouter creates a chi.Mux with all routes and middleware configured.
func NewRouter(deps Deps, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware(log))

	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(deps.Queue, deps.DB))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/lex/fulfillment", LexFulfillmentHandler(deps.Lex))

		if deps.DLQ != nil {
			r.Post("/dlq/reprocess", DLQReprocessHandler(deps.DLQ))
		}
	})

	return r
}
