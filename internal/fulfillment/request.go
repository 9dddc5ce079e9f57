package fulfillment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Layout names the wire shape a queued request arrived in.
type Layout string

const (
	LayoutFlat  Layout = "flat"
	LayoutSlots Layout = "slots"
	LayoutMixed Layout = "mixed"
	LayoutEmpty Layout = "empty"
)

// Request is the canonical fulfillment request, independent of the layout it
// was queued in.
type Request struct {
	Category      string
	Recipient     string
	// PartySize is carried as given: "4", "4 people" and "two" are all kept.
	PartySize     string
	RequestedTime string
	Location      string
	CorrelationID string
}

// Unprocessable errors are never retried.
var (
	ErrInvalidPayload = errors.New("request payload is malformed")
	ErrMissingFields  = errors.New("request is missing category or recipient")
)

// Wire keys are matched exactly; encoding/json struct tags would also accept
// differently cased keys.
var (
	flatKeys = fieldKeys{
		category:  "Cuisine",
		recipient: "Email",
		location:  "Location",
		time:      "DiningTime",
		party:     "NumPeople",
		requestID: "RequestId",
	}
	slotKeys = fieldKeys{
		category:  "cuisine",
		recipient: "email",
		location:  "location",
		time:      "diningTime",
		party:     "numPeople",
	}
)

const slotsKey = "slots"

type fieldKeys struct {
	category, recipient, location, time, party, requestID string
}

// fields is one layout's view of the payload. Absent keys stay nil.
type fields struct {
	category, recipient, location, time, party, requestID *string
}

func (f fields) present() bool {
	return f.category != nil || f.recipient != nil || f.location != nil ||
		f.time != nil || f.party != nil || f.requestID != nil
}

// extract reads one layout's keys from raw. A category or recipient of the
// wrong shape is an error; an optional field of the wrong shape is treated
// as absent.
func extract(raw map[string]json.RawMessage, keys fieldKeys) (fields, error) {
	var f fields
	for _, k := range []struct {
		key      string
		dst      **string
		required bool
	}{
		{keys.category, &f.category, true},
		{keys.recipient, &f.recipient, true},
		{keys.location, &f.location, false},
		{keys.time, &f.time, false},
		{keys.party, &f.party, false},
		{keys.requestID, &f.requestID, false},
	} {
		if k.key == "" {
			continue
		}
		v, ok := raw[k.key]
		if !ok {
			continue
		}
		s, err := stringValue(v)
		if err != nil {
			if k.required {
				return fields{}, fmt.Errorf("%s: %w", k.key, err)
			}
			continue
		}
		*k.dst = s
	}
	return f, nil
}

// stringValue decodes a JSON string. null yields nil; numbers and booleans
// are kept in their literal form.
func stringValue(v json.RawMessage) (*string, error) {
	v = bytes.TrimSpace(v)
	if bytes.Equal(v, []byte("null")) {
		return nil, nil
	}
	if len(v) > 0 && v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, err
		}
		return &s, nil
	}
	if len(v) > 0 && (v[0] == '{' || v[0] == '[') {
		return nil, errors.New("expected a scalar value")
	}
	s := string(v)
	return &s, nil
}

// DecodeRequest parses a queued body in any accepted layout. Flat fields take
// precedence over nested slot fields. A body that is not a JSON object, or
// whose category or recipient is not a scalar, returns ErrInvalidPayload.
func DecodeRequest(body []byte) (Request, Layout, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		if err == nil {
			err = errors.New("null body")
		}
		return Request{}, "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	flat, err := extract(raw, flatKeys)
	if err != nil {
		return Request{}, "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var slots fields
	hasSlots := false
	if v, ok := raw[slotsKey]; ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(v, &nested); err != nil {
			return Request{}, "", fmt.Errorf("%w: slots: %v", ErrInvalidPayload, err)
		}
		if slots, err = extract(nested, slotKeys); err != nil {
			return Request{}, "", fmt.Errorf("%w: slots.%v", ErrInvalidPayload, err)
		}
		hasSlots = true
	}

	var layout Layout
	switch {
	case flat.present() && hasSlots:
		layout = LayoutMixed
	case flat.present():
		layout = LayoutFlat
	case hasSlots:
		layout = LayoutSlots
	default:
		layout = LayoutEmpty
	}

	req := Request{
		Category:      firstString(flat.category, slots.category),
		Recipient:     firstString(flat.recipient, slots.recipient),
		Location:      firstString(flat.location, slots.location),
		RequestedTime: firstString(flat.time, slots.time),
		PartySize:     strings.TrimSpace(firstString(flat.party, slots.party)),
		CorrelationID: firstString(flat.requestID),
	}
	return req, layout, nil
}

// Validate reports ErrMissingFields when the request cannot be fulfilled.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Category) == "" || strings.TrimSpace(r.Recipient) == "" {
		return ErrMissingFields
	}
	return nil
}

func firstString(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}
