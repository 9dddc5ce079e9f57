package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sungwon/dining-concierge/internal/logger"
)

// Intent names handled by the bot.
const (
	IntentGreeting = "GreetingIntent"
	IntentThankYou = "ThankYouIntent"
	IntentDining   = "DiningSuggestionsIntent"
)

// Dining slots, in the order they are elicited.
var diningSlots = []string{"Location", "Cuisine", "DiningTime", "NumPeople", "Email"}

var slotPrompts = map[string]string{
	"Location":   "Great. What city or area are you looking to dine in?",
	"Cuisine":    "What cuisine would you like to try?",
	"DiningTime": "What time would you like to dine?",
	"NumPeople":  "How many people are in your party?",
	"Email":      "What email address should I send the recommendations to?",
}

// Enqueuer publishes a request body to the fulfillment queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, body []byte) (string, error)
}

// DiningRequest is the flat queue layout consumed by the fulfillment worker.
type DiningRequest struct {
	Location   string `json:"Location"`
	Cuisine    string `json:"Cuisine"`
	DiningTime string `json:"DiningTime"`
	NumPeople  string `json:"NumPeople"`
	Email      string `json:"Email"`
	RequestID  string `json:"RequestId"`
}

// Handler answers Lex events.
type Handler struct {
	queue Enqueuer
	log   zerolog.Logger
	newID func() string
}

// NewHandler creates a Handler that enqueues dining requests on q.
func NewHandler(q Enqueuer, log zerolog.Logger) *Handler {
	return &Handler{queue: q, log: log, newID: logger.NewCorrelationID}
}

// Handle dispatches on the intent name. It never returns an error; failures
// become a Close/Failed response the bot can read out.
func (h *Handler) Handle(ctx context.Context, ev Event) Response {
	intent := ev.SessionState.Intent
	switch intent.Name {
	case IntentGreeting:
		return closeResponse(intent, StateFulfilled, "Hi there, how can I help?")
	case IntentThankYou:
		return closeResponse(intent, StateFulfilled, "You're welcome! Let me know if you need anything else.")
	case IntentDining:
		return h.handleDining(ctx, ev)
	default:
		h.log.Warn().Str("intent", intent.Name).Msg("unrecognized intent")
		return closeResponse(intent, StateFailed, "Sorry, I didn't understand that.")
	}
}

func (h *Handler) handleDining(ctx context.Context, ev Event) Response {
	intent := ev.SessionState.Intent

	values := make(map[string]string, len(diningSlots))
	for _, name := range diningSlots {
		v := strings.TrimSpace(intent.slotValue(name))
		if v == "" {
			return elicitSlot(ev.SessionState, name, slotPrompts[name])
		}
		if validate, ok := slotValidators[name]; ok {
			if err := validate(v); err != nil {
				h.log.Info().Err(err).Str("slot", name).Msg("re-eliciting invalid slot")
				return elicitSlot(ev.SessionState, name, invalidSlotPrompts[name])
			}
		}
		values[name] = v
	}

	req := DiningRequest{
		Location:   values["Location"],
		Cuisine:    values["Cuisine"],
		DiningTime: values["DiningTime"],
		NumPeople:  values["NumPeople"],
		Email:      values["Email"],
		RequestID:  h.newID(),
	}
	log := h.log.With().Str("request_id", req.RequestID).Str("cuisine", req.Cuisine).Logger()

	body, err := json.Marshal(req)
	if err != nil {
		log.Error().Err(err).Msg("encode dining request")
		return closeResponse(intent, StateFailed, enqueueFailedMessage)
	}

	messageID, err := h.queue.Enqueue(ctx, body)
	if err != nil {
		log.Error().Err(err).Msg("enqueue dining request failed")
		return closeResponse(intent, StateFailed, enqueueFailedMessage)
	}
	log.Info().Str("queue_message_id", messageID).Msg("dining request enqueued")

	return closeResponse(intent, StateFulfilled, fmt.Sprintf(
		"Got it! I'll send %s restaurant recommendations for %s people at %s in %s to %s.",
		req.Cuisine, req.NumPeople, req.DiningTime, req.Location, req.Email,
	))
}

const enqueueFailedMessage = "Sorry, I couldn't submit your request right now. Please try again in a moment."

func closeResponse(intent Intent, state, message string) Response {
	return Response{
		SessionState: SessionState{
			DialogAction: &DialogAction{Type: ActionClose},
			Intent: Intent{
				Name:  intent.Name,
				Slots: intent.Slots,
				State: state,
			},
		},
		Messages: []Message{{ContentType: contentTypePlain, Content: message}},
	}
}

func elicitSlot(state SessionState, slot, prompt string) Response {
	return Response{
		SessionState: SessionState{
			DialogAction: &DialogAction{Type: ActionElicitSlot, SlotToElicit: slot},
			Intent: Intent{
				Name:  state.Intent.Name,
				Slots: state.Intent.Slots,
				State: StateInProgress,
			},
			SessionAttributes: state.SessionAttributes,
		},
		Messages: []Message{{ContentType: contentTypePlain, Content: prompt}},
	}
}
