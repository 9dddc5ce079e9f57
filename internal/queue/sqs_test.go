package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// mockSQSClient implements sqsAPI for testing.
type mockSQSClient struct {
	mu         sync.Mutex
	messages   map[string][]sqsReceivedMessage // per queue URL
	sent       []sqsSendInput
	deleted    []sqsDeleteInput
	received   []sqsReceiveInput
	sendErr    error
	receiveErr error
	deleteErr  error
	depth      int
}

func newMockSQSClient() *mockSQSClient {
	return &mockSQSClient{messages: make(map[string][]sqsReceivedMessage)}
}

func (m *mockSQSClient) SendMessage(_ context.Context, input *sqsSendInput) (*sqsSendOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, *input)
	return &sqsSendOutput{MessageID: "mock-msg-id"}, nil
}

func (m *mockSQSClient) ReceiveMessage(_ context.Context, input *sqsReceiveInput) (*sqsReceiveOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, *input)
	if m.receiveErr != nil {
		return nil, m.receiveErr
	}
	msgs := m.messages[input.QueueURL]
	n := min(len(msgs), int(input.MaxNumberOfMessages))
	out := make([]sqsReceivedMessage, n)
	copy(out, msgs[:n])
	m.messages[input.QueueURL] = msgs[n:]
	return &sqsReceiveOutput{Messages: out}, nil
}

func (m *mockSQSClient) DeleteMessage(_ context.Context, input *sqsDeleteInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, *input)
	return nil
}

func (m *mockSQSClient) ApproximateDepth(_ context.Context, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depth, nil
}

func (m *mockSQSClient) push(queueURL string, msgs ...sqsReceivedMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[queueURL] = append(m.messages[queueURL], msgs...)
}

func (m *mockSQSClient) getSent() []sqsSendInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sqsSendInput, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *mockSQSClient) getDeleted() []sqsDeleteInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sqsDeleteInput, len(m.deleted))
	copy(out, m.deleted)
	return out
}

func (m *mockSQSClient) getReceived() []sqsReceiveInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sqsReceiveInput, len(m.received))
	copy(out, m.received)
	return out
}

// testLogger returns a zerolog.Logger that discards all output.
func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

const (
	testQueueURL = "https://sqs.us-east-1.amazonaws.com/123/dining-requests"
	testDLQURL   = "https://sqs.us-east-1.amazonaws.com/123/dining-requests-dlq"
)

func newTestQueue(mock *mockSQSClient) *SQSQueue {
	return newSQSQueue(mock, Options{QueueURL: testQueueURL, VisibilityTimeout: 30 * time.Second}, testLogger())
}

func TestSQSQueue_ReceiveBatch(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	sent := time.UnixMilli(1700000000000)
	mock.push(testQueueURL,
		sqsReceivedMessage{MessageID: "m1", ReceiptHandle: "h1", Body: `{"Cuisine":"italian"}`, ReceiveCount: 1, SentAt: sent},
		sqsReceivedMessage{MessageID: "m2", ReceiptHandle: "h2", Body: `{}`, ReceiveCount: 3},
	)
	q := newTestQueue(mock)

	got, err := q.ReceiveBatch(context.Background(), 10, 20*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if got[0].Handle != "h1" || got[0].MessageID != "m1" || got[0].ReceiveCount != 1 || !got[0].SentAt.Equal(sent) {
		t.Errorf("unexpected first delivery: %+v", got[0])
	}
	if got[1].ReceiveCount != 3 {
		t.Errorf("expected receive count 3, got %d", got[1].ReceiveCount)
	}

	in := mock.getReceived()[0]
	if in.QueueURL != testQueueURL {
		t.Errorf("unexpected queue URL: %s", in.QueueURL)
	}
	if in.WaitTimeSeconds != 20 {
		t.Errorf("expected wait 20s, got %d", in.WaitTimeSeconds)
	}
	if in.VisibilityTimeout != 30 {
		t.Errorf("expected visibility 30s, got %d", in.VisibilityTimeout)
	}
}

func TestSQSQueue_ReceiveBatch_ClampsLimits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		max      int
		wait     time.Duration
		wantMax  int32
		wantWait int32
	}{
		{"zero max becomes one", 0, 5 * time.Second, 1, 5},
		{"max above ten", 50, time.Second, 10, 1},
		{"negative wait", 3, -time.Second, 3, 0},
		{"wait above twenty", 3, time.Minute, 3, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockSQSClient()
			q := newTestQueue(mock)
			if _, err := q.ReceiveBatch(context.Background(), tt.max, tt.wait); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			in := mock.getReceived()[0]
			if in.MaxNumberOfMessages != tt.wantMax {
				t.Errorf("expected max %d, got %d", tt.wantMax, in.MaxNumberOfMessages)
			}
			if in.WaitTimeSeconds != tt.wantWait {
				t.Errorf("expected wait %d, got %d", tt.wantWait, in.WaitTimeSeconds)
			}
		})
	}
}

func TestSQSQueue_ReceiveBatch_Error(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	mock.receiveErr = errors.New("sqs unavailable")
	q := newTestQueue(mock)

	if _, err := q.ReceiveBatch(context.Background(), 10, 0); !errors.Is(err, mock.receiveErr) {
		t.Fatalf("expected wrapped receive error, got %v", err)
	}
}

func TestSQSQueue_Delete(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	q := newTestQueue(mock)

	if err := q.Delete(context.Background(), "h1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deleted := mock.getDeleted()
	if len(deleted) != 1 || deleted[0].ReceiptHandle != "h1" || deleted[0].QueueURL != testQueueURL {
		t.Errorf("unexpected deletes: %+v", deleted)
	}
}

func TestSQSQueue_Delete_StaleHandleIsNoop(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	mock.deleteErr = ErrHandleInvalid
	q := newTestQueue(mock)

	if err := q.Delete(context.Background(), "expired"); err != nil {
		t.Fatalf("expected stale handle delete to succeed, got %v", err)
	}
}

func TestSQSQueue_Delete_Error(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	mock.deleteErr = errors.New("connection reset")
	q := newTestQueue(mock)

	if err := q.Delete(context.Background(), "h1"); !errors.Is(err, mock.deleteErr) {
		t.Fatalf("expected delete error, got %v", err)
	}
}

func TestSQSQueue_Enqueue(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	q := newTestQueue(mock)

	id, err := q.Enqueue(context.Background(), []byte(`{"Cuisine":"thai","Email":"a@example.com"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "mock-msg-id" {
		t.Errorf("expected message ID %q, got %q", "mock-msg-id", id)
	}
	sent := mock.getSent()
	if len(sent) != 1 || sent[0].MessageBody != `{"Cuisine":"thai","Email":"a@example.com"}` {
		t.Errorf("unexpected sent messages: %+v", sent)
	}
}

func TestSQSQueue_Enqueue_Error(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	mock.sendErr = errors.New("sqs unavailable")
	q := newTestQueue(mock)

	_, err := q.Enqueue(context.Background(), []byte("{}"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := err.Error(); got != "sqs send message: sqs unavailable" {
		t.Errorf("unexpected error message: %s", got)
	}
}

func TestSQSQueue_Depth(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	mock.depth = 42
	q := newTestQueue(mock)

	n, err := q.Depth(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 42 {
		t.Errorf("expected depth 42, got %d", n)
	}
}

// --- DLQ Tests ---

func TestDLQ_MoveToDLQ(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	q := newTestQueue(mock)
	dlq := newDLQ(mock, testDLQURL, q, testLogger())
	movedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	dlq.now = func() time.Time { return movedAt }

	del := Delivery{MessageID: "m1", Handle: "h1", Body: `{"Cuisine":"italian"}`, ReceiveCount: 5}
	if err := dlq.MoveToDLQ(context.Background(), del, "max_receives"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := mock.getSent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(sent))
	}
	if sent[0].QueueURL != testDLQURL {
		t.Errorf("expected send to DLQ, got %s", sent[0].QueueURL)
	}
	var env DLQMessage
	if err := json.Unmarshal([]byte(sent[0].MessageBody), &env); err != nil {
		t.Fatalf("failed to unmarshal envelope: %v", err)
	}
	if env.OriginalBody != del.Body || env.SourceMessageID != "m1" || env.ReceiveCount != 5 ||
		env.FailureReason != "max_receives" || !env.MovedAt.Equal(movedAt) {
		t.Errorf("unexpected envelope: %+v", env)
	}

	deleted := mock.getDeleted()
	if len(deleted) != 1 || deleted[0].QueueURL != testQueueURL || deleted[0].ReceiptHandle != "h1" {
		t.Errorf("expected primary delete of h1, got %+v", deleted)
	}
}

func TestDLQ_MoveToDLQ_SendFailureKeepsOriginal(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	mock.sendErr = errors.New("sqs unavailable")
	q := newTestQueue(mock)
	dlq := newDLQ(mock, testDLQURL, q, testLogger())

	err := dlq.MoveToDLQ(context.Background(), Delivery{MessageID: "m1", Handle: "h1"}, "permanent_notify_failure")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(mock.getDeleted()) != 0 {
		t.Error("original must not be deleted when the DLQ send fails")
	}
}

func TestDLQ_MoveToDLQ_PrimaryDeleteFailureStillMoved(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	mock.deleteErr = errors.New("connection reset")
	q := newTestQueue(mock)
	dlq := newDLQ(mock, testDLQURL, q, testLogger())

	del := Delivery{MessageID: "m1", Handle: "h1", Body: "{}", ReceiveCount: 5}
	if err := dlq.MoveToDLQ(context.Background(), del, "max_receives"); err != nil {
		t.Fatalf("expected the move to count once the DLQ send succeeded, got %v", err)
	}
	if sent := mock.getSent(); len(sent) != 1 || sent[0].QueueURL != testDLQURL {
		t.Errorf("expected one DLQ send, got %+v", sent)
	}
}

func TestDLQ_Reprocess_CollapsesDuplicateSources(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	dlq := newDLQ(mock, testDLQURL, newTestQueue(mock), testLogger())

	first, _ := json.Marshal(DLQMessage{OriginalBody: `{"Cuisine":"thai"}`, SourceMessageID: "m1", ReceiveCount: 5})
	second, _ := json.Marshal(DLQMessage{OriginalBody: `{"Cuisine":"thai"}`, SourceMessageID: "m1", ReceiveCount: 6})
	other, _ := json.Marshal(DLQMessage{OriginalBody: `{"Cuisine":"greek"}`, SourceMessageID: "m2"})
	mock.push(testDLQURL,
		sqsReceivedMessage{MessageID: "d1", ReceiptHandle: "dh1", Body: string(first)},
		sqsReceivedMessage{MessageID: "d2", ReceiptHandle: "dh2", Body: string(second)},
		sqsReceivedMessage{MessageID: "d3", ReceiptHandle: "dh3", Body: string(other)},
	)

	n, err := dlq.Reprocess(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 reprocessed, got %d", n)
	}
	if sent := mock.getSent(); len(sent) != 2 {
		t.Errorf("expected 2 re-enqueued bodies, got %d", len(sent))
	}
	if deleted := mock.getDeleted(); len(deleted) != 3 {
		t.Errorf("expected all 3 envelopes deleted from the DLQ, got %d", len(deleted))
	}
}

func TestDLQ_Reprocess(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	q := newTestQueue(mock)
	dlq := newDLQ(mock, testDLQURL, q, testLogger())

	env, _ := json.Marshal(DLQMessage{OriginalBody: `{"Cuisine":"thai"}`, SourceMessageID: "m1"})
	mock.push(testDLQURL,
		sqsReceivedMessage{MessageID: "d1", ReceiptHandle: "dh1", Body: string(env)},
		sqsReceivedMessage{MessageID: "d2", ReceiptHandle: "dh2", Body: "not json"},
	)

	n, err := dlq.Reprocess(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 reprocessed, got %d", n)
	}

	sent := mock.getSent()
	if len(sent) != 1 || sent[0].QueueURL != testQueueURL || sent[0].MessageBody != `{"Cuisine":"thai"}` {
		t.Errorf("expected original body re-enqueued to primary, got %+v", sent)
	}
	deleted := mock.getDeleted()
	if len(deleted) != 1 || deleted[0].QueueURL != testDLQURL || deleted[0].ReceiptHandle != "dh1" {
		t.Errorf("expected DLQ delete of dh1, got %+v", deleted)
	}
}

func TestDLQ_Reprocess_CapsBatch(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	dlq := newDLQ(mock, testDLQURL, newTestQueue(mock), testLogger())

	if _, err := dlq.Reprocess(context.Background(), 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := mock.getReceived()[0].MaxNumberOfMessages; got != 10 {
		t.Errorf("expected batch capped at 10, got %d", got)
	}

	n, err := dlq.Reprocess(context.Background(), 0)
	if err != nil || n != 0 {
		t.Errorf("expected no-op for zero, got %d, %v", n, err)
	}
}

func TestDLQ_Reprocess_EnqueueFailureKeepsEnvelope(t *testing.T) {
	t.Parallel()

	mock := newMockSQSClient()
	dlq := newDLQ(mock, testDLQURL, newTestQueue(mock), testLogger())
	env, _ := json.Marshal(DLQMessage{OriginalBody: "{}", SourceMessageID: "m1"})
	mock.push(testDLQURL, sqsReceivedMessage{MessageID: "d1", ReceiptHandle: "dh1", Body: string(env)})
	mock.sendErr = errors.New("sqs unavailable")

	n, err := dlq.Reprocess(context.Background(), 1)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if n != 0 {
		t.Errorf("expected 0 reprocessed, got %d", n)
	}
	if len(mock.getDeleted()) != 0 {
		t.Error("envelope must stay in the DLQ when re-enqueue fails")
	}
}

func TestReceiveAttributes(t *testing.T) {
	t.Parallel()

	attrs := map[string]string{"ApproximateReceiveCount": "4", "SentTimestamp": "1700000000000"}
	if got := receiveCount(attrs); got != 4 {
		t.Errorf("expected receive count 4, got %d", got)
	}
	if got := sentAt(attrs); !got.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("unexpected sent time %v", got)
	}
	if got := receiveCount(nil); got != 0 {
		t.Errorf("expected 0 for missing attribute, got %d", got)
	}
	if got := sentAt(nil); !got.IsZero() {
		t.Errorf("expected zero time for missing attribute, got %v", got)
	}
}

func TestIsInvalidHandle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"receipt handle invalid", &smithy.GenericAPIError{Code: "ReceiptHandleIsInvalid"}, true},
		{"invalid parameter", &smithy.GenericAPIError{Code: "InvalidParameterValue"}, true},
		{"typed error", &types.ReceiptHandleIsInvalid{}, true},
		{"throttled", &smithy.GenericAPIError{Code: "ThrottlingException"}, false},
		{"plain error", errors.New("timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isInvalidHandle(tt.err); got != tt.want {
				t.Errorf("isInvalidHandle(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
