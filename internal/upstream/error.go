// Package upstream classifies failures of external collaborators (search
// index, record store, notification service) into a closed set of outcomes
// the fulfillment worker can branch on.
package upstream

import (
	"errors"
	"fmt"
	"strings"
)

// Kind says whether a failed call may succeed if the request is redelivered.
type Kind int

const (
	// KindTransient covers network errors, timeouts, throttling and 5xx
	// responses. The queue's redelivery is the only retry mechanism.
	KindTransient Kind = iota
	// KindPermanent covers failures that will not change on retry, such as a
	// rejected recipient or a malformed query.
	KindPermanent
)

func (k Kind) String() string {
	if k == KindPermanent {
		return "permanent"
	}
	return "transient"
}

// Error wraps a failed upstream call with classification metadata.
type Error struct {
	// Service names the collaborator, e.g. "opensearch", "dynamodb", "ses".
	Service string
	// Op is the operation that failed, e.g. "search" or "send".
	Op string
	// Kind is the retry classification.
	Kind Kind
	// StatusCode is the HTTP or protocol status code, 0 when not applicable.
	StatusCode int
	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Service)
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	b.WriteString(": ")
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(e.Kind.String() + " failure")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Transient builds a transient Error.
func Transient(service, op string, err error) *Error {
	return &Error{Service: service, Op: op, Kind: KindTransient, Err: err}
}

// Permanent builds a permanent Error.
func Permanent(service, op string, err error) *Error {
	return &Error{Service: service, Op: op, Kind: KindPermanent, Err: err}
}

// IsPermanent reports whether err carries a permanent classification.
func IsPermanent(err error) bool {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind == KindPermanent
	}
	return false
}

// IsTransient reports whether err may succeed after redelivery.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind == KindTransient
	}
	// Unknown errors are treated as transient to avoid dropping work.
	return true
}

// KindOf returns the classification of err, defaulting to KindTransient.
func KindOf(err error) Kind {
	if IsPermanent(err) {
		return KindPermanent
	}
	return KindTransient
}

// ClassifyHTTPStatus builds an Error from an HTTP status code and response
// body. It returns nil for 2xx responses.
func ClassifyHTTPStatus(service, op string, statusCode int, body string) *Error {
	e := &Error{
		Service:    service,
		Op:         op,
		StatusCode: statusCode,
		Err:        errors.New(truncate(strings.TrimSpace(body), 512)),
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == 408, statusCode == 429:
		e.Kind = KindTransient
	case statusCode >= 500:
		e.Kind = KindTransient
	case statusCode >= 400:
		// Bad query, bad credentials, missing index: none of these change on
		// redelivery.
		e.Kind = KindPermanent
	default:
		e.Kind = KindTransient
	}
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
