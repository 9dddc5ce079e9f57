package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Stdout writes messages to a writer instead of delivering them. Intended
// for development; Send always succeeds unless the write fails.
type Stdout struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewStdout creates a Stdout sender writing to w.
func NewStdout(w io.Writer) *Stdout {
	return &Stdout{writer: w}
}

// Send prints the message and returns a synthetic receipt.
func (s *Stdout) Send(_ context.Context, msg Message) (Receipt, error) {
	id := "stdout-" + uuid.NewString()

	var b strings.Builder
	b.WriteString("--- stdout sender: message ---\n")
	fmt.Fprintf(&b, "ID:      %s\n", id)
	fmt.Fprintf(&b, "To:      %s\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	b.WriteString(msg.Body)
	b.WriteString("\n--- end ---\n")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.writer, b.String()); err != nil {
		return Receipt{}, fmt.Errorf("stdout: write: %w", err)
	}
	return Receipt{Provider: "stdout", MessageID: id}, nil
}
