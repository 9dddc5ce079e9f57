// Package intake answers Lex V2 code-hook events and enqueues dining
// requests for fulfillment.
package intake

// Event is the subset of a Lex V2 code-hook event the handler reads.
type Event struct {
	SessionID        string       `json:"sessionId,omitempty"`
	InputTranscript  string       `json:"inputTranscript,omitempty"`
	InvocationSource string       `json:"invocationSource,omitempty"`
	SessionState     SessionState `json:"sessionState"`
}

// SessionState carries the current intent and session attributes.
type SessionState struct {
	DialogAction      *DialogAction     `json:"dialogAction,omitempty"`
	Intent            Intent            `json:"intent"`
	SessionAttributes map[string]string `json:"sessionAttributes,omitempty"`
}

// Intent is the recognized intent and its slots.
type Intent struct {
	Name  string           `json:"name"`
	Slots map[string]*Slot `json:"slots,omitempty"`
	State string           `json:"state,omitempty"`
}

// Slot is one slot value. Lex sends null for unfilled slots.
type Slot struct {
	Value *SlotValue `json:"value,omitempty"`
}

// SlotValue holds the resolved slot text.
type SlotValue struct {
	OriginalValue    string   `json:"originalValue,omitempty"`
	InterpretedValue string   `json:"interpretedValue"`
	ResolvedValues   []string `json:"resolvedValues,omitempty"`
}

// DialogAction tells Lex what to do next.
type DialogAction struct {
	Type         string `json:"type"`
	SlotToElicit string `json:"slotToElicit,omitempty"`
}

// Message is a reply shown to the user.
type Message struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Response is a Lex V2 code-hook response.
type Response struct {
	SessionState SessionState `json:"sessionState"`
	Messages     []Message    `json:"messages"`
}

// Dialog action types and intent states.
const (
	ActionClose      = "Close"
	ActionElicitSlot = "ElicitSlot"
	StateFulfilled   = "Fulfilled"
	StateFailed      = "Failed"
	StateInProgress  = "InProgress"
	contentTypePlain = "PlainText"
)

func (i Intent) slotValue(name string) string {
	s, ok := i.Slots[name]
	if !ok || s == nil || s.Value == nil {
		return ""
	}
	return s.Value.InterpretedValue
}
