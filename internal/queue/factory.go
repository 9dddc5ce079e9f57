package queue

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/dining-concierge/internal/config"
)

// New creates the request queue and, when cfg.DLQURL is set, its dead-letter
// queue. The returned DLQ is nil when no DLQ is configured.
func New(ctx context.Context, cfg config.QueueConfig, log zerolog.Logger) (*SQSQueue, *DLQ, error) {
	client, err := newAWSSQSClient(ctx, cfg.Region, cfg.Endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("create sqs client: %w", err)
	}

	q := newSQSQueue(client, Options{
		QueueURL:          cfg.URL,
		VisibilityTimeout: cfg.VisibilityTimeout,
	}, log)

	var dlq *DLQ
	if cfg.DLQURL != "" {
		dlq = newDLQ(client, cfg.DLQURL, q, log)
	}
	return q, dlq, nil
}
