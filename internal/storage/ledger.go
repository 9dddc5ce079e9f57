package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sungwon/dining-concierge/internal/metrics"
)

// Status is the outcome of a notification attempt.
type Status string

const (
	StatusDelivered    Status = "delivered"
	StatusNotifyFailed Status = "notify_failed"
	StatusDeadLettered Status = "dead_lettered"
)

// Entry is one row of the fulfillment log.
type Entry struct {
	MessageID         string
	CorrelationID     string
	Category          string
	Recipient         string
	CandidateCount    int
	Status            Status
	Provider          string
	ProviderMessageID string
	Error             string
	ReceiveCount      int
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Ledger appends fulfillment attempts to the fulfillment_log table.
type Ledger struct {
	db execer
}

// NewLedger creates a Ledger writing through db, usually a *pgxpool.Pool.
func NewLedger(db execer) *Ledger {
	return &Ledger{db: db}
}

const insertEntrySQL = `INSERT INTO fulfillment_log
	(message_id, correlation_id, category, recipient, candidate_count, status,
	 provider, provider_message_id, error, receive_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Record inserts e.
func (l *Ledger) Record(ctx context.Context, e Entry) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveQuery("insert_fulfillment_log", start, err) }()

	_, err = l.db.Exec(ctx, insertEntrySQL,
		e.MessageID,
		nullable(e.CorrelationID),
		e.Category,
		e.Recipient,
		e.CandidateCount,
		string(e.Status),
		nullable(e.Provider),
		nullable(e.ProviderMessageID),
		nullable(e.Error),
		e.ReceiveCount,
	)
	if err != nil {
		return fmt.Errorf("insert fulfillment log: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
