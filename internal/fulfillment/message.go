package fulfillment

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sungwon/dining-concierge/internal/notify"
	"github.com/sungwon/dining-concierge/internal/records"
)

// OutboundMessage is the recommendation email for one request.
type OutboundMessage struct {
	Recipient string
	Subject   string
	Body      string
}

// Notification converts m for a notify.Sender.
func (m OutboundMessage) Notification() notify.Message {
	return notify.Message{To: m.Recipient, Subject: m.Subject, Body: m.Body}
}

// Compose builds the message for req from recs, keeping record order.
func Compose(req Request, recs []records.Record) OutboundMessage {
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, r.Name+", "+r.Address+" (rating: "+formatRating(r)+")")
	}
	return OutboundMessage{
		Recipient: req.Recipient,
		Subject:   "Your " + capitalize(req.Category) + " Restaurant Recommendations!",
		Body:      strings.Join(lines, "\n"),
	}
}

// formatRating prints a numeric rating in its shortest form and a text
// rating as stored.
func formatRating(r records.Record) string {
	switch {
	case r.Rating != nil:
		return strconv.FormatFloat(*r.Rating, 'f', -1, 64)
	case r.RatingText != "":
		return r.RatingText
	default:
		return "N/A"
	}
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
