package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orderflow/eventstore"
	"orderflow/internal/id"
)

// CommandHandler loads, executes commands against, and persists aggregates
// of type T (spec.md §4.C). It replaces a hand-written repository per
// aggregate type with one generic implementation shared by every aggregate
// this core manages (Order, SagaInstance).
type CommandHandler[T Aggregate] struct {
	store         eventstore.Store
	aggregateType string
	registry      Registry
	newZero       func() T
	fromSnapshot  func(eventstore.Document) (T, error)
}

// NewCommandHandler builds a handler for aggregateType. newZero returns a
// fresh default-state aggregate instance (spec.md §4.C: "a zero-value
// default form"). fromSnapshot may be nil if the aggregate never snapshots;
// LoadWithSnapshot then degrades to Load.
func NewCommandHandler[T Aggregate](
	store eventstore.Store,
	aggregateType string,
	registry Registry,
	newZero func() T,
	fromSnapshot func(eventstore.Document) (T, error),
) *CommandHandler[T] {
	return &CommandHandler[T]{
		store:         store,
		aggregateType: aggregateType,
		registry:      registry,
		newZero:       newZero,
		fromSnapshot:  fromSnapshot,
	}
}

// Load fetches every persisted event for id and folds Apply over a fresh
// aggregate, returning the rebuilt instance and its current version.
func (h *CommandHandler[T]) Load(ctx context.Context, aggID id.AggregateID) (T, int, error) {
	envelopes, err := h.store.GetEventsForAggregate(ctx, aggID)
	if err != nil {
		var zero T
		return zero, 0, err
	}

	agg := h.newZero()
	for _, env := range envelopes {
		event, err := h.decode(env)
		if err != nil {
			var zero T
			return zero, 0, err
		}
		agg.Apply(event)
	}
	return agg, agg.Version(), nil
}

// LoadWithSnapshot restores from the aggregate's most recent snapshot, if
// any, then folds only the events with version greater than the snapshot's
// (spec.md §4.C). With no snapshot, or no fromSnapshot decoder configured,
// it falls back to a full Load.
func (h *CommandHandler[T]) LoadWithSnapshot(ctx context.Context, aggID id.AggregateID) (T, int, error) {
	if h.fromSnapshot == nil {
		return h.Load(ctx, aggID)
	}

	snap, found, err := h.store.GetSnapshot(ctx, aggID)
	if err != nil {
		var zero T
		return zero, 0, err
	}
	if !found {
		return h.Load(ctx, aggID)
	}

	agg, err := h.fromSnapshot(snap.State)
	if err != nil {
		var zero T
		return zero, 0, err
	}

	envelopes, err := h.store.GetEventsForAggregate(ctx, aggID)
	if err != nil {
		var zero T
		return zero, 0, err
	}

	for _, env := range envelopes {
		if env.Version <= snap.Version {
			continue
		}
		event, err := h.decode(env)
		if err != nil {
			var zero T
			return zero, 0, err
		}
		agg.Apply(event)
	}
	return agg, agg.Version(), nil
}

// Exists reports whether any events have been recorded for id.
func (h *CommandHandler[T]) Exists(ctx context.Context, aggID id.AggregateID) (bool, error) {
	envelopes, err := h.store.GetEventsForAggregate(ctx, aggID)
	if err != nil {
		return false, err
	}
	return len(envelopes) > 0, nil
}

// Execute loads id, invokes commandFn against the loaded aggregate to
// produce new domain events, assigns them consecutive versions starting at
// current_version+1, appends them with the matching precondition (New when
// the aggregate doesn't exist yet, Exact(current_version) otherwise), folds
// them onto the in-memory aggregate, and returns the updated aggregate, the
// persisted envelopes, and the new version (spec.md §4.C).
//
// ConcurrencyConflict is surfaced unchanged, never retried here — callers
// that want retry semantics use RetryOnConflict.
func (h *CommandHandler[T]) Execute(
	ctx context.Context,
	aggID id.AggregateID,
	commandFn func(T) ([]DomainEvent, error),
) (T, []eventstore.Envelope, int, error) {
	var zero T

	agg, version, err := h.Load(ctx, aggID)
	if err != nil {
		return zero, nil, 0, err
	}

	events, err := commandFn(agg)
	if err != nil {
		return zero, nil, 0, err
	}
	if len(events) == 0 {
		return agg, nil, version, nil
	}

	envelopes := make([]eventstore.Envelope, 0, len(events))
	for i, de := range events {
		payload, err := eventstore.ToDocument(de)
		if err != nil {
			return zero, nil, 0, err
		}
		env, err := eventstore.NewEnvelope(aggID, h.aggregateType, de.EventType(), version+i+1, payload)
		if err != nil {
			return zero, nil, 0, err
		}
		envelopes = append(envelopes, env)
	}

	expected := eventstore.Exact(version)
	if version == 0 {
		expected = eventstore.New()
	}

	newVersion, err := h.store.Append(ctx, envelopes, expected)
	if err != nil {
		return zero, nil, 0, err
	}

	for _, de := range events {
		agg.Apply(de)
	}

	return agg, envelopes, newVersion, nil
}

// RetryOnConflict re-runs Execute against a freshly loaded aggregate each
// time it fails with a ConcurrencyConflict, up to maxAttempts retries, with
// exponential backoff (10ms, 20ms, 40ms, ...) between attempts. Any other
// error returns immediately. The handler itself never retries on its own
// (spec.md §4.C "Concurrency recovery"); this is for callers that opt in.
func (h *CommandHandler[T]) RetryOnConflict(
	ctx context.Context,
	aggID id.AggregateID,
	maxAttempts int,
	commandFn func(T) ([]DomainEvent, error),
) (T, []eventstore.Envelope, int, error) {
	var (
		zero    T
		lastErr error
	)

	for attempt := 0; ; attempt++ {
		agg, envelopes, version, err := h.Execute(ctx, aggID, commandFn)
		if err == nil {
			return agg, envelopes, version, nil
		}

		var conflict *eventstore.ConcurrencyError
		if !errors.As(err, &conflict) {
			return zero, nil, 0, err
		}
		lastErr = err

		if attempt >= maxAttempts {
			return zero, nil, 0, fmt.Errorf("aggregate: exceeded %d retries: %w", maxAttempts, lastErr)
		}

		backoff := time.Duration(10*(1<<uint(attempt))) * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return zero, nil, 0, ctx.Err()
		}
	}
}

func (h *CommandHandler[T]) decode(env eventstore.Envelope) (DomainEvent, error) {
	decoder, ok := h.registry[env.EventType]
	if !ok {
		return nil, fmt.Errorf("aggregate: no decoder registered for event type %q", env.EventType)
	}
	return decoder(env.Payload)
}
