package eventstore

import (
	"context"
	"time"

	"orderflow/internal/id"
)

// versionMode selects the precondition Append checks before writing.
type versionMode int

const (
	modeAny versionMode = iota
	modeNew
	modeExact
)

// ExpectedVersion carries the optimistic-concurrency precondition for
// Append, per spec.md §4.B: Any, New (the aggregate must not yet exist), or
// Exact(v) (the aggregate's current version must equal v).
type ExpectedVersion struct {
	mode  versionMode
	exact int
}

// Any applies no precondition.
func Any() ExpectedVersion { return ExpectedVersion{mode: modeAny} }

// New requires the aggregate to currently have zero events.
func New() ExpectedVersion { return ExpectedVersion{mode: modeNew} }

// Exact requires the aggregate's current highest version to equal v.
func Exact(v int) ExpectedVersion { return ExpectedVersion{mode: modeExact, exact: v} }

// check validates actual (the aggregate's current highest version) against
// the precondition, returning a *ConcurrencyError on mismatch.
func (ev ExpectedVersion) check(actual int) error {
	switch ev.mode {
	case modeNew:
		if actual != 0 {
			return &ConcurrencyError{Expected: 0, Actual: actual}
		}
	case modeExact:
		if actual != ev.exact {
			return &ConcurrencyError{Expected: ev.exact, Actual: actual}
		}
	case modeAny:
		// no precondition
	}
	return nil
}

// Snapshot is a point-in-time serialized aggregate state (spec.md §3). At
// most one snapshot is retained per aggregate; a newer save replaces the
// older one.
type Snapshot struct {
	AggregateID   id.AggregateID
	AggregateType string
	Version       int
	Timestamp     time.Time
	State         Document
}

// Store is the backend-agnostic event-store contract of spec.md §4.B,
// satisfied by MemoryStore and PostgresStore.
type Store interface {
	// Append persists events atomically, enforcing expected's precondition,
	// and returns the aggregate's highest version after the write. All
	// envelopes in the batch must share one aggregate_id/aggregate_type and
	// carry strictly consecutive versions continuing from the expected
	// version, or Append fails with an *InvalidBatchError. On any failure no
	// envelope is persisted.
	Append(ctx context.Context, events []Envelope, expected ExpectedVersion) (int, error)

	// GetEventsForAggregate returns all envelopes for id in version order.
	GetEventsForAggregate(ctx context.Context, aggregateID id.AggregateID) ([]Envelope, error)

	// GetEventsByType returns all envelopes of the given type, timestamp-ordered.
	GetEventsByType(ctx context.Context, eventType string) ([]Envelope, error)

	// GetEventsInRange returns envelopes for id with version in
	// [fromVersion, toVersion], inclusive; empty if the range is empty.
	GetEventsInRange(ctx context.Context, aggregateID id.AggregateID, fromVersion, toVersion int) ([]Envelope, error)

	// StreamAll calls handle once per envelope across all aggregates, in the
	// store's deterministic total order: (timestamp, aggregate_id, version).
	// It stops and returns handle's error if handle returns one, or ctx's
	// error if ctx is done.
	StreamAll(ctx context.Context, handle func(Envelope) error) error

	// SaveSnapshot persists snapshot, replacing any prior snapshot for the
	// same aggregate.
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error

	// GetSnapshot returns the aggregate's snapshot, if any (found=false
	// otherwise).
	GetSnapshot(ctx context.Context, aggregateID id.AggregateID) (snap Snapshot, found bool, err error)
}
