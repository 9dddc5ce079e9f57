package api

import (
	"context"
	"net/http"
	"time"

	"github.com/sungwon/dining-concierge/internal/logger"
)

// QueueProber reports the approximate depth of the request queue.
type QueueProber interface {
	Depth(ctx context.Context) (int, error)
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

const readinessTimeout = 3 * time.Second

// HealthzHandler handles GET /healthz. It always answers 200.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type readyResponse struct {
	Status     string `json:"status"`
	QueueDepth *int   `json:"queue_depth,omitempty"`
}

// ReadyzHandler handles GET /readyz. It probes the queue and, when db is
// non-nil, the database. Any failure answers 503 with Retry-After.
func ReadyzHandler(q QueueProber, db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		resp := readyResponse{Status: "ok"}
		if q != nil {
			depth, err := q.Depth(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("queue readiness probe failed")
				w.Header().Set("Retry-After", "30")
				respondError(w, http.StatusServiceUnavailable, "queue unavailable")
				return
			}
			resp.QueueDepth = &depth
		}

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				log.Warn().Err(err).Msg("database readiness probe failed")
				w.Header().Set("Retry-After", "30")
				respondError(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}

		respondJSON(w, http.StatusOK, resp)
	}
}
