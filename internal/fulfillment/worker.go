// Package fulfillment turns queued dining requests into recommendation
// emails: decode, search for candidates, resolve their records, send, and
// acknowledge.
package fulfillment

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/dining-concierge/internal/config"
	"github.com/sungwon/dining-concierge/internal/logger"
	"github.com/sungwon/dining-concierge/internal/metrics"
	"github.com/sungwon/dining-concierge/internal/notify"
	"github.com/sungwon/dining-concierge/internal/queue"
	"github.com/sungwon/dining-concierge/internal/records"
	"github.com/sungwon/dining-concierge/internal/storage"
	"github.com/sungwon/dining-concierge/internal/upstream"
)

// State is a step of the per-message state machine.
type State string

const (
	StateReceived                State = "received"
	StateValidated               State = "validated"
	StateSearched                State = "searched"
	StateEnriched                State = "enriched"
	StateNotified                State = "notified"
	StateAcknowledged            State = "acknowledged"
	StateDropped                 State = "dropped"
	StateFailedPendingRedelivery State = "failed_pending_redelivery"
	StateDeadLettered            State = "dead_lettered"
)

// Outcome reasons, used as metric labels and in logs.
const (
	ReasonDelivered        = "delivered"
	ReasonInvalidPayload   = "invalid_payload"
	ReasonMissingFields    = "missing_fields"
	ReasonSearchFailed     = "search_failed"
	ReasonNoCandidates     = "no_candidates"
	ReasonLookupFailed     = "lookup_failed"
	ReasonNoRecords        = "no_records"
	ReasonNotifyTransient  = "notify_transient"
	ReasonNotifyPermanent  = "notify_permanent"
	ReasonDeleteFailed     = "delete_failed"
	ReasonMaxReceives      = "max_receives"
	ReasonPermanentFailure = "permanent_notify_failure"
)

// ackTimeout bounds the delete, dead-letter move and ledger write that follow
// a send. They run after the per-message deadline may have passed.
const ackTimeout = 10 * time.Second

// Queue is the primary request queue.
type Queue interface {
	ReceiveBatch(ctx context.Context, maxMessages int, waitTime time.Duration) ([]queue.Delivery, error)
	Delete(ctx context.Context, handle string) error
}

// DeadLetterer moves a delivery off the primary queue.
type DeadLetterer interface {
	MoveToDLQ(ctx context.Context, d queue.Delivery, reason string) error
}

// CandidateFinder returns entity IDs for a category.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, category string) ([]string, error)
}

// RecordResolver resolves entity IDs to records.
type RecordResolver interface {
	GetRecords(ctx context.Context, ids []string) ([]records.Record, error)
}

// Ledger records notification attempts.
type Ledger interface {
	Record(ctx context.Context, e storage.Entry) error
}

// Deps are the collaborators of a Worker. DLQ and Ledger are optional.
type Deps struct {
	Queue   Queue
	DLQ     DeadLetterer
	Search  CandidateFinder
	Records RecordResolver
	Sender  notify.Sender
	Ledger  Ledger
}

// Options tune the run loop and the per-message policy.
type Options struct {
	MaxMessages     int
	WaitTime        time.Duration
	Pollers         int
	Concurrency     int
	ProcessTimeout  time.Duration
	ShutdownTimeout time.Duration
	// MaxReceives moves unfulfilled deliveries to the DLQ once their receive
	// count reaches it. Zero disables the check.
	MaxReceives int
}

// OptionsFromConfig maps the queue section of the configuration.
func OptionsFromConfig(cfg config.QueueConfig) Options {
	return Options{
		MaxMessages:     int(cfg.MaxMessages),
		WaitTime:        cfg.WaitTime,
		Pollers:         cfg.Pollers,
		Concurrency:     cfg.Concurrency,
		ProcessTimeout:  cfg.ProcessTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		MaxReceives:     cfg.MaxReceives,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxMessages <= 0 {
		o.MaxMessages = 10
	}
	if o.Pollers <= 0 {
		o.Pollers = 1
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 10
	}
	if o.ProcessTimeout <= 0 {
		o.ProcessTimeout = 30 * time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 30 * time.Second
	}
	return o
}

// Result is the terminal outcome of one delivery.
type Result struct {
	State  State
	Reason string
	Err    error
}

// Worker processes deliveries from the request queue.
type Worker struct {
	deps Deps
	opts Options
	log  zerolog.Logger

	runner
}

// New creates a Worker. Queue, Search, Records and Sender are required.
func New(deps Deps, opts Options, log zerolog.Logger) (*Worker, error) {
	var errs []error
	if deps.Queue == nil {
		errs = append(errs, errors.New("fulfillment: queue is required"))
	}
	if deps.Search == nil {
		errs = append(errs, errors.New("fulfillment: search client is required"))
	}
	if deps.Records == nil {
		errs = append(errs, errors.New("fulfillment: record resolver is required"))
	}
	if deps.Sender == nil {
		errs = append(errs, errors.New("fulfillment: sender is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Worker{deps: deps, opts: opts.withDefaults(), log: log}, nil
}

// attempt carries per-message state through Process.
type attempt struct {
	delivery queue.Delivery
	req      Request
	log      zerolog.Logger
	start    time.Time
}

// Process runs one delivery through the state machine. The delivery is
// deleted only after its notification is accepted, or moved to the DLQ by
// the dead-letter policy. Process never panics on bad input and never
// returns an error; the outcome is in the Result.
func (w *Worker) Process(ctx context.Context, d queue.Delivery) Result {
	a := &attempt{
		delivery: d,
		start:    time.Now(),
		log: w.log.With().
			Str("message_id", d.MessageID).
			Int("receive_count", d.ReceiveCount).
			Logger(),
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.ProcessTimeout)
	defer cancel()

	res := w.process(ctx, a)

	metrics.FulfillmentOutcomesTotal.WithLabelValues(string(res.State), res.Reason).Inc()
	metrics.FulfillmentDuration.Observe(time.Since(a.start).Seconds())
	return res
}

func (w *Worker) process(ctx context.Context, a *attempt) Result {
	req, layout, err := DecodeRequest([]byte(a.delivery.Body))
	if err != nil {
		a.log.Warn().Err(err).Msg("dropping unprocessable request")
		return w.unfulfilled(a, Result{State: StateDropped, Reason: ReasonInvalidPayload, Err: err})
	}
	a.req = req
	if req.CorrelationID != "" {
		a.log = a.log.With().Str("correlation_id", req.CorrelationID).Logger()
		ctx = logger.WithCorrelationID(ctx, req.CorrelationID)
	}
	ctx = logger.WithLogger(ctx, a.log)
	a.log.Debug().Str("layout", string(layout)).Str("state", string(StateReceived)).Msg("request decoded")

	if err := req.Validate(); err != nil {
		a.log.Warn().Err(err).Str("layout", string(layout)).Msg("dropping invalid request")
		return w.unfulfilled(a, Result{State: StateDropped, Reason: ReasonMissingFields, Err: err})
	}
	a.log = a.log.With().Str("category", req.Category).Logger()
	a.log.Debug().Str("state", string(StateValidated)).Msg("request validated")

	ids, err := w.deps.Search.FindCandidates(ctx, req.Category)
	if err != nil {
		a.log.Error().Err(err).Str("kind", upstream.KindOf(err).String()).Msg("candidate search failed")
		return w.unfulfilled(a, Result{State: StateDropped, Reason: ReasonSearchFailed, Err: err})
	}
	if len(ids) == 0 {
		a.log.Info().Msg("no candidates for category")
		return w.unfulfilled(a, Result{State: StateDropped, Reason: ReasonNoCandidates})
	}
	a.log.Debug().Str("state", string(StateSearched)).Strs("candidates", ids).Msg("candidates found")

	recs, err := w.deps.Records.GetRecords(ctx, ids)
	if err != nil {
		a.log.Error().Err(err).Str("kind", upstream.KindOf(err).String()).Msg("record lookup failed")
		return w.unfulfilled(a, Result{State: StateDropped, Reason: ReasonLookupFailed, Err: err})
	}
	if len(recs) == 0 {
		a.log.Info().Int("candidates", len(ids)).Msg("no records resolved")
		return w.unfulfilled(a, Result{State: StateDropped, Reason: ReasonNoRecords})
	}
	a.log.Debug().Str("state", string(StateEnriched)).Int("records", len(recs)).Msg("records resolved")

	msg := Compose(req, recs)
	rcpt, err := w.deps.Sender.Send(ctx, msg.Notification())
	if err != nil {
		return w.notifyFailed(a, len(recs), err)
	}
	a.log.Info().
		Str("state", string(StateNotified)).
		Str("provider", rcpt.Provider).
		Str("provider_message_id", rcpt.MessageID).
		Msg("recommendations sent")

	entry := w.entry(a, len(recs), storage.StatusDelivered)
	entry.Provider = rcpt.Provider
	entry.ProviderMessageID = rcpt.MessageID

	ackCtx, cancel := afterSendContext(ctx)
	defer cancel()

	w.record(ackCtx, a, entry)

	if err := w.deps.Queue.Delete(ackCtx, a.delivery.Handle); err != nil {
		a.log.Error().Err(err).Msg("delete after delivery failed, request will be redelivered")
		return Result{State: StateNotified, Reason: ReasonDeleteFailed, Err: err}
	}
	return Result{State: StateAcknowledged, Reason: ReasonDelivered}
}

func (w *Worker) notifyFailed(a *attempt, recordCount int, err error) Result {
	permanent := upstream.IsPermanent(err)
	res := Result{State: StateFailedPendingRedelivery, Reason: ReasonNotifyTransient, Err: err}
	if permanent {
		res.Reason = ReasonNotifyPermanent
	}
	a.log.Error().Err(err).Bool("permanent", permanent).Msg("notification failed")

	ctx, cancel := afterSendContext(context.Background())
	defer cancel()

	status := storage.StatusNotifyFailed
	dlqReason := ""
	switch {
	case permanent:
		dlqReason = ReasonPermanentFailure
	case w.exhausted(a.delivery):
		dlqReason = ReasonMaxReceives
	}
	if dlqReason != "" && w.moveToDLQ(ctx, a, dlqReason) {
		status = storage.StatusDeadLettered
		res.State = StateDeadLettered
	}

	entry := w.entry(a, recordCount, status)
	entry.Error = err.Error()
	w.record(ctx, a, entry)
	return res
}

// unfulfilled applies the receive-count policy to a dropped delivery.
func (w *Worker) unfulfilled(a *attempt, res Result) Result {
	if !w.exhausted(a.delivery) {
		return res
	}
	ctx, cancel := afterSendContext(context.Background())
	defer cancel()
	if w.moveToDLQ(ctx, a, ReasonMaxReceives) {
		res.State = StateDeadLettered
	}
	return res
}

func (w *Worker) exhausted(d queue.Delivery) bool {
	return w.deps.DLQ != nil && w.opts.MaxReceives > 0 && d.ReceiveCount >= w.opts.MaxReceives
}

func (w *Worker) moveToDLQ(ctx context.Context, a *attempt, reason string) bool {
	if w.deps.DLQ == nil {
		return false
	}
	if err := w.deps.DLQ.MoveToDLQ(ctx, a.delivery, reason); err != nil {
		a.log.Error().Err(err).Str("reason", reason).Msg("move to dead-letter queue failed")
		return false
	}
	a.log.Warn().Str("reason", reason).Msg("request moved to dead-letter queue")
	return true
}

func (w *Worker) entry(a *attempt, recordCount int, status storage.Status) storage.Entry {
	return storage.Entry{
		MessageID:      a.delivery.MessageID,
		CorrelationID:  a.req.CorrelationID,
		Category:       a.req.Category,
		Recipient:      a.req.Recipient,
		CandidateCount: recordCount,
		Status:         status,
		ReceiveCount:   a.delivery.ReceiveCount,
	}
}

func (w *Worker) record(ctx context.Context, a *attempt, e storage.Entry) {
	if w.deps.Ledger == nil {
		return
	}
	if err := w.deps.Ledger.Record(ctx, e); err != nil {
		a.log.Error().Err(err).Msg("ledger write failed")
	}
}

// afterSendContext detaches from the message deadline so a delivered
// message can still be acknowledged.
func afterSendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
}
