package compensation

import (
	"context"
	"time"

	"orderflow/internal/obslog"
)

// RetryFunc re-attempts one pending compensation step. It must be
// idempotent: the coordinator derives the same idempotency key it used on
// the first attempt.
type RetryFunc func(ctx context.Context, sagaID, step string) error

// Worker polls Store for compensations that could not complete
// synchronously and retries them until they succeed, mirroring the
// teacher's OutboxPublisher ticker-poll loop.
type Worker struct {
	store    Store
	retry    RetryFunc
	interval time.Duration
	log      *obslog.Logger
}

func NewWorker(store Store, retry RetryFunc) *Worker {
	return &Worker{
		store:    store,
		retry:    retry,
		interval: 2 * time.Second,
		log:      obslog.New("compensation.worker"),
	}
}

// Start runs the poll loop until ctx is canceled.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("started")

	for {
		select {
		case <-ticker.C:
			w.retryPending(ctx)
		case <-ctx.Done():
			w.log.Info("stopped")
			return nil
		}
	}
}

func (w *Worker) retryPending(ctx context.Context) {
	pending, err := w.store.ListPending(ctx, 100)
	if err != nil {
		w.log.Error("list pending: %v", err)
		return
	}

	for _, p := range pending {
		if err := w.retry(ctx, p.SagaID, p.Step); err != nil {
			w.log.Error("retry %s/%s: %v", p.SagaID, p.Step, err)
			continue
		}
		if err := w.store.Remove(ctx, p.SagaID, p.Step); err != nil {
			w.log.Error("remove %s/%s: %v", p.SagaID, p.Step, err)
		}
	}
}
