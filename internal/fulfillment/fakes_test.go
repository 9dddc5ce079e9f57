package fulfillment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sungwon/dining-concierge/internal/notify"
	"github.com/sungwon/dining-concierge/internal/queue"
	"github.com/sungwon/dining-concierge/internal/records"
	"github.com/sungwon/dining-concierge/internal/storage"
)

type fakeQueue struct {
	mu          sync.Mutex
	batches     [][]queue.Delivery
	receiveErrs int
	receives    int
	deleted     []string
	deleteErr   error
}

func (q *fakeQueue) ReceiveBatch(ctx context.Context, _ int, _ time.Duration) ([]queue.Delivery, error) {
	q.mu.Lock()
	q.receives++
	if q.receiveErrs > 0 {
		q.receiveErrs--
		q.mu.Unlock()
		return nil, errors.New("sqs unavailable")
	}
	if len(q.batches) > 0 {
		b := q.batches[0]
		q.batches = q.batches[1:]
		q.mu.Unlock()
		return b, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, nil
	}
}

func (q *fakeQueue) Delete(_ context.Context, handle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, handle)
	return q.deleteErr
}

func (q *fakeQueue) getDeleted() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.deleted...)
}

type moveCall struct {
	delivery queue.Delivery
	reason   string
}

type fakeDLQ struct {
	mu    sync.Mutex
	moves []moveCall
	err   error
}

func (d *fakeDLQ) MoveToDLQ(_ context.Context, del queue.Delivery, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.moves = append(d.moves, moveCall{delivery: del, reason: reason})
	return d.err
}

func (d *fakeDLQ) getMoves() []moveCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]moveCall(nil), d.moves...)
}

type fakeSearch struct {
	mu    sync.Mutex
	ids   []string
	err   error
	calls []string
}

func (s *fakeSearch) FindCandidates(_ context.Context, category string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, category)
	return s.ids, s.err
}

func (s *fakeSearch) getCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type fakeResolver struct {
	mu    sync.Mutex
	recs  []records.Record
	err   error
	calls [][]string
}

func (r *fakeResolver) GetRecords(_ context.Context, ids []string) ([]records.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ids)
	return r.recs, r.err
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// fakeStore backs a real records.Resolver.
type fakeStore struct {
	recs map[string]records.Record
	errs map[string]error
}

func (s *fakeStore) Get(_ context.Context, id string) (records.Record, error) {
	if err, ok := s.errs[id]; ok {
		return records.Record{}, err
	}
	if rec, ok := s.recs[id]; ok {
		return rec, nil
	}
	return records.Record{}, records.ErrNotFound
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []notify.Message
	err      error
	delay    time.Duration
	inFlight int
	maxSeen  int
}

func (s *fakeSender) Send(ctx context.Context, msg notify.Message) (notify.Receipt, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return notify.Receipt{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return notify.Receipt{}, s.err
	}
	s.sent = append(s.sent, msg)
	return notify.Receipt{Provider: "fake", MessageID: "fake-id"}, nil
}

func (s *fakeSender) getSent() []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Message(nil), s.sent...)
}

func (s *fakeSender) getMaxSeen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSeen
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []storage.Entry
	err     error
}

func (l *fakeLedger) Record(_ context.Context, e storage.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return l.err
}

func (l *fakeLedger) getEntries() []storage.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]storage.Entry(nil), l.entries...)
}
