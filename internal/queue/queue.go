// Package queue implements the request queue on AWS SQS: long-poll batch
// receive, idempotent delete, the producer path and the dead-letter queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// SQS receive limits.
const (
	maxBatchSize = 10
	maxWaitTime  = 20 * time.Second
)

// Delivery is one received, not yet acknowledged message.
type Delivery struct {
	MessageID string
	// Handle is the receipt handle bound to this delivery. It stays valid
	// until the message is deleted or its visibility timeout expires.
	Handle       string
	Body         string
	ReceiveCount int
	SentAt       time.Time
}

// Options configures an SQSQueue.
type Options struct {
	QueueURL          string
	VisibilityTimeout time.Duration
}

// SQSQueue is the request queue backed by a single SQS queue.
type SQSQueue struct {
	client     sqsAPI
	queueURL   string
	visTimeout int32
	log        zerolog.Logger
}

func newSQSQueue(client sqsAPI, opts Options, log zerolog.Logger) *SQSQueue {
	return &SQSQueue{
		client:     client,
		queueURL:   opts.QueueURL,
		visTimeout: int32(opts.VisibilityTimeout / time.Second),
		log:        log,
	}
}

// ReceiveBatch long-polls for up to maxMessages deliveries. maxMessages is
// clamped to 1..10 and waitTime to 0..20s.
func (q *SQSQueue) ReceiveBatch(ctx context.Context, maxMessages int, waitTime time.Duration) ([]Delivery, error) {
	maxMessages = min(max(maxMessages, 1), maxBatchSize)
	waitTime = min(max(waitTime, 0), maxWaitTime)

	out, err := q.client.ReceiveMessage(ctx, &sqsReceiveInput{
		QueueURL:            q.queueURL,
		MaxNumberOfMessages: int32(maxMessages),
		WaitTimeSeconds:     int32(waitTime / time.Second),
		VisibilityTimeout:   q.visTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive message: %w", err)
	}

	deliveries := make([]Delivery, 0, len(out.Messages))
	for _, m := range out.Messages {
		deliveries = append(deliveries, Delivery{
			MessageID:    m.MessageID,
			Handle:       m.ReceiptHandle,
			Body:         m.Body,
			ReceiveCount: m.ReceiveCount,
			SentAt:       m.SentAt,
		})
	}
	MessagesReceivedTotal.Add(float64(len(deliveries)))
	return deliveries, nil
}

// Delete acknowledges a delivery. Deleting an already deleted or expired
// handle is a no-op.
func (q *SQSQueue) Delete(ctx context.Context, handle string) error {
	err := q.client.DeleteMessage(ctx, &sqsDeleteInput{
		QueueURL:      q.queueURL,
		ReceiptHandle: handle,
	})
	if errors.Is(err, ErrHandleInvalid) {
		q.log.Debug().Err(err).Msg("delete of stale receipt handle ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("sqs delete message: %w", err)
	}
	MessagesDeletedTotal.Inc()
	return nil
}

// Enqueue sends body to the queue and returns the SQS message ID.
func (q *SQSQueue) Enqueue(ctx context.Context, body []byte) (string, error) {
	out, err := q.client.SendMessage(ctx, &sqsSendInput{
		QueueURL:    q.queueURL,
		MessageBody: string(body),
	})
	if err != nil {
		return "", fmt.Errorf("sqs send message: %w", err)
	}
	MessagesEnqueuedTotal.Inc()
	return out.MessageID, nil
}

// Depth reports the approximate number of visible messages and updates the
// pending gauge.
func (q *SQSQueue) Depth(ctx context.Context) (int, error) {
	n, err := q.client.ApproximateDepth(ctx, q.queueURL)
	if err != nil {
		return 0, fmt.Errorf("sqs queue attributes: %w", err)
	}
	QueueDepth.Set(float64(n))
	return n, nil
}

// URL returns the queue URL.
func (q *SQSQueue) URL() string { return q.queueURL }
