package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sungwon/dining-concierge/internal/logger"
)

// maxReprocessBatch is the SQS receive limit; larger requests are clamped.
const maxReprocessBatch = 10

// Reprocessor moves messages from the DLQ back to the primary queue.
type Reprocessor interface {
	Reprocess(ctx context.Context, limit int) (int, error)
}

type dlqReprocessRequest struct {
	MaxMessages int `json:"max_messages"`
}

type dlqReprocessResponse struct {
	Reprocessed int `json:"reprocessed"`
}

// DLQReprocessHandler handles POST /api/v1/dlq/reprocess. An empty body
// reprocesses up to the maximum batch.
func DLQReprocessHandler(dlq Reprocessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		req := dlqReprocessRequest{MaxMessages: maxReprocessBatch}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.MaxMessages <= 0 {
			respondError(w, http.StatusBadRequest, "max_messages must be positive")
			return
		}
		if req.MaxMessages > maxReprocessBatch {
			req.MaxMessages = maxReprocessBatch
		}

		reprocessed, err := dlq.Reprocess(r.Context(), req.MaxMessages)
		if err != nil {
			log.Error().Err(err).
				Int("requested", req.MaxMessages).
				Int("reprocessed", reprocessed).
				Msg("dlq reprocess failed")
			respondError(w, http.StatusInternalServerError, "reprocess failed")
			return
		}

		log.Info().Int("reprocessed", reprocessed).Msg("dlq messages reprocessed")
		respondJSON(w, http.StatusOK, dlqReprocessResponse{Reprocessed: reprocessed})
	}
}
