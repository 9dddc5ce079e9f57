package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DLQMessage is the envelope written to the dead-letter queue.
type DLQMessage struct {
	OriginalBody    string    `json:"original_body"`
	SourceMessageID string    `json:"source_message_id"`
	ReceiveCount    int       `json:"receive_count"`
	FailureReason   string    `json:"failure_reason"`
	MovedAt         time.Time `json:"moved_at"`
}

// DLQ manages dead-letter operations for a primary SQSQueue.
type DLQ struct {
	client  sqsAPI
	dlqURL  string
	primary *SQSQueue
	log     zerolog.Logger
	now     func() time.Time
}

func newDLQ(client sqsAPI, dlqURL string, primary *SQSQueue, log zerolog.Logger) *DLQ {
	return &DLQ{
		client:  client,
		dlqURL:  dlqURL,
		primary: primary,
		log:     log,
		now:     time.Now,
	}
}

// MoveToDLQ wraps the delivery in a DLQMessage envelope, sends it to the
// dead-letter queue and then deletes it from the primary queue. The delivery
// is left on the primary queue if the send fails. Once the send succeeds the
// move counts as done even if the primary delete fails; a redelivered copy is
// dead-lettered again and collapsed by Reprocess.
func (d *DLQ) MoveToDLQ(ctx context.Context, del Delivery, reason string) error {
	data, err := json.Marshal(DLQMessage{
		OriginalBody:    del.Body,
		SourceMessageID: del.MessageID,
		ReceiveCount:    del.ReceiveCount,
		FailureReason:   reason,
		MovedAt:         d.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq message: %w", err)
	}

	if _, err := d.client.SendMessage(ctx, &sqsSendInput{
		QueueURL:    d.dlqURL,
		MessageBody: string(data),
	}); err != nil {
		return fmt.Errorf("sqs send to dlq: %w", err)
	}

	if err := d.primary.Delete(ctx, del.Handle); err != nil {
		d.log.Warn().Err(err).
			Str("message_id", del.MessageID).
			Msg("dead-lettered message could not be deleted from primary queue")
	}

	DLQMessagesTotal.WithLabelValues(reason).Inc()
	return nil
}

// Reprocess drains up to limit envelopes (at most 10) from the DLQ back onto
// the primary queue. Each envelope is deleted from the DLQ only after it was
// re-enqueued. Envelopes in the batch that repeat a source message ID are
// deleted without being re-enqueued again. It returns the number of requests
// reprocessed.
func (d *DLQ) Reprocess(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	limit = min(limit, maxBatchSize)

	out, err := d.client.ReceiveMessage(ctx, &sqsReceiveInput{
		QueueURL:            d.dlqURL,
		MaxNumberOfMessages: int32(limit),
		WaitTimeSeconds:     0, // no long-poll for reprocessing
		VisibilityTimeout:   30,
	})
	if err != nil {
		return 0, fmt.Errorf("sqs receive from dlq: %w", err)
	}

	reprocessed := 0
	seen := make(map[string]struct{}, len(out.Messages))
	for _, m := range out.Messages {
		var env DLQMessage
		if err := json.Unmarshal([]byte(m.Body), &env); err != nil {
			d.log.Warn().Err(err).Str("sqs_message_id", m.MessageID).Msg("skipping malformed dlq message")
			continue
		}

		_, dup := seen[env.SourceMessageID]
		if env.SourceMessageID != "" {
			seen[env.SourceMessageID] = struct{}{}
		}
		if dup {
			d.log.Debug().Str("source_message_id", env.SourceMessageID).Msg("dropping duplicate dlq envelope")
		} else if _, err := d.primary.Enqueue(ctx, []byte(env.OriginalBody)); err != nil {
			return reprocessed, fmt.Errorf("re-enqueue message %s: %w", env.SourceMessageID, err)
		}

		if err := d.client.DeleteMessage(ctx, &sqsDeleteInput{
			QueueURL:      d.dlqURL,
			ReceiptHandle: m.ReceiptHandle,
		}); err != nil {
			return reprocessed, fmt.Errorf("delete dlq message: %w", err)
		}

		if !dup {
			reprocessed++
		}
	}

	if reprocessed > 0 {
		d.log.Info().Int("count", reprocessed).Msg("dlq messages reprocessed")
	}
	return reprocessed, nil
}
