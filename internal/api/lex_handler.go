package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sungwon/dining-concierge/internal/intake"
	"github.com/sungwon/dining-concierge/internal/logger"
)

// maxLexEventBytes caps the request body of a code-hook event.
const maxLexEventBytes = 1 << 20

// LexResponder answers a Lex V2 code-hook event.
type LexResponder interface {
	Handle(ctx context.Context, ev intake.Event) intake.Response
}

// LexFulfillmentHandler handles POST /api/v1/lex/fulfillment.
func LexFulfillmentHandler(lex LexResponder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var ev intake.Event
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLexEventBytes)).Decode(&ev); err != nil {
			log.Warn().Err(err).Msg("invalid lex event")
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if ev.SessionState.Intent.Name == "" {
			respondError(w, http.StatusBadRequest, "sessionState.intent.name is required")
			return
		}

		respondJSON(w, http.StatusOK, lex.Handle(r.Context(), ev))
	}
}
