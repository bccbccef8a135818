package eventstore

import (
	"context"
	"sort"
	"sync"

	"orderflow/internal/id"
)

// MemoryStore is the in-memory Store backend of spec.md §4.B: two maps
// (events by aggregate, snapshots by aggregate) guarded by a single write
// mutex. StreamAll orders by (timestamp, aggregate_id, version); a monotonic
// sequence counter recorded at append time is the last tie-breaker.
type MemoryStore struct {
	mu        sync.Mutex
	events    map[id.AggregateID][]Envelope
	snapshots map[id.AggregateID]Snapshot
	seq       map[id.EventID]int64
	nextSeq   int64
}

// NewMemoryStore creates an empty, ready-to-use MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:    make(map[id.AggregateID][]Envelope),
		snapshots: make(map[id.AggregateID]Snapshot),
		seq:       make(map[id.EventID]int64),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Append(_ context.Context, events []Envelope, expected ExpectedVersion) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(events) == 0 {
		return 0, &InvalidBatchError{Reason: "batch must contain at least one event"}
	}

	current := len(s.events[events[0].AggregateID])
	if err := expected.check(current); err != nil {
		return 0, err
	}

	aggregateID, _, err := validateBatch(events, current)
	if err != nil {
		return 0, err
	}

	for _, e := range events {
		s.nextSeq++
		s.seq[e.EventID] = s.nextSeq
	}

	s.events[aggregateID] = append(s.events[aggregateID], events...)
	return s.events[aggregateID][len(s.events[aggregateID])-1].Version, nil
}

func (s *MemoryStore) GetEventsForAggregate(_ context.Context, aggregateID id.AggregateID) ([]Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events[aggregateID]
	out := make([]Envelope, len(events))
	copy(out, events)
	return out, nil
}

func (s *MemoryStore) GetEventsByType(_ context.Context, eventType string) ([]Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Envelope
	for _, stream := range s.events {
		for _, e := range stream {
			if e.EventType == eventType {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) GetEventsInRange(_ context.Context, aggregateID id.AggregateID, fromVersion, toVersion int) ([]Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Envelope
	for _, e := range s.events[aggregateID] {
		if e.Version >= fromVersion && e.Version <= toVersion {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) StreamAll(ctx context.Context, handle func(Envelope) error) error {
	s.mu.Lock()
	var all []Envelope
	for _, stream := range s.events {
		all = append(all, stream...)
	}
	seq := make(map[id.EventID]int64, len(s.seq))
	for k, v := range s.seq {
		seq[k] = v
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.AggregateID != b.AggregateID {
			return a.AggregateID.String() < b.AggregateID.String()
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return seq[a.EventID] < seq[b.EventID]
	})

	for _, e := range all {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := handle(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.AggregateID] = snapshot
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, aggregateID id.AggregateID) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[aggregateID]
	return snap, ok, nil
}
