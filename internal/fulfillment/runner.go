package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sungwon/dining-concierge/internal/queue"
)

// receiveBackoff is the pause after a failed receive.
const receiveBackoff = time.Second

// ErrAlreadyStarted is returned by Start on a running Worker.
var ErrAlreadyStarted = errors.New("fulfillment: worker already started")

type runner struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sem     chan struct{}
	started bool
}

// Start launches the configured number of pollers. Each poller receives a
// batch, processes it with at most Concurrency messages in flight across all
// pollers, and waits for the batch before polling again.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}
	w.started = true

	ctx, w.cancel = context.WithCancel(ctx)
	w.sem = make(chan struct{}, w.opts.Concurrency)

	for i := range w.opts.Pollers {
		w.wg.Add(1)
		go w.poll(ctx, fmt.Sprintf("poller-%d", i))
	}

	w.log.Info().
		Int("pollers", w.opts.Pollers).
		Int("concurrency", w.opts.Concurrency).
		Int("max_messages", w.opts.MaxMessages).
		Dur("wait_time", w.opts.WaitTime).
		Msg("fulfillment worker started")
	return nil
}

// Stop cancels polling and waits for in-flight messages until the shutdown
// timeout or ctx expires. In-flight messages are not cancelled; they finish
// within their own process timeout.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.cancel()
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(w.opts.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		w.log.Info().Msg("fulfillment worker stopped gracefully")
		return nil
	case <-timer.C:
		w.log.Warn().Msg("fulfillment worker shutdown timed out")
		return errors.New("fulfillment: shutdown timed out with messages in flight")
	case <-ctx.Done():
		w.log.Warn().Msg("fulfillment worker shutdown interrupted")
		return ctx.Err()
	}
}

func (w *Worker) poll(ctx context.Context, name string) {
	defer w.wg.Done()

	log := w.log.With().Str("poller", name).Logger()
	log.Debug().Msg("poller started")

	for {
		if ctx.Err() != nil {
			log.Debug().Msg("poller stopping")
			return
		}

		batch, err := w.deps.Queue.ReceiveBatch(ctx, w.opts.MaxMessages, w.opts.WaitTime)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Msg("receive failed")
			select {
			case <-ctx.Done():
			case <-time.After(receiveBackoff):
			}
			continue
		}

		w.processBatch(ctx, batch)
	}
}

// processBatch runs every delivery of a batch concurrently and returns once
// all of them reached a terminal state. Messages are detached from ctx so
// shutdown does not abandon them half way.
func (w *Worker) processBatch(ctx context.Context, batch []queue.Delivery) {
	detached := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, d := range batch {
		w.sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					w.log.Error().
						Interface("panic", r).
						Str("message_id", d.MessageID).
						Msg("panic while processing message")
				}
				<-w.sem
				wg.Done()
			}()
			w.Process(detached, d)
		}()
	}
	wg.Wait()
}
