package eventstore

import (
	"fmt"

	"orderflow/internal/id"
)

// validateBatch checks the structural invariants spec.md §4.B requires of
// every Append call: a single aggregate_id/aggregate_type, and strictly
// consecutive versions continuing from currentVersion. It is shared by every
// backend so the "all envelopes share one aggregate" rule can't drift
// between implementations.
func validateBatch(events []Envelope, currentVersion int) (aggregateID id.AggregateID, aggregateType string, err error) {
	if len(events) == 0 {
		return id.AggregateID{}, "", &InvalidBatchError{Reason: "batch must contain at least one event"}
	}

	aggregateID = events[0].AggregateID
	aggregateType = events[0].AggregateType
	expected := currentVersion + 1

	for i, e := range events {
		if e.AggregateID != aggregateID {
			return id.AggregateID{}, "", &InvalidBatchError{
				Reason: fmt.Sprintf("event %d has aggregate_id %s, want %s", i, e.AggregateID, aggregateID),
			}
		}
		if e.AggregateType != aggregateType {
			return id.AggregateID{}, "", &InvalidBatchError{
				Reason: fmt.Sprintf("event %d has aggregate_type %s, want %s", i, e.AggregateType, aggregateType),
			}
		}
		if e.Version != expected {
			return id.AggregateID{}, "", &InvalidBatchError{
				Reason: fmt.Sprintf("event %d has version %d, want consecutive version %d", i, e.Version, expected),
			}
		}
		expected++
	}

	return aggregateID, aggregateType, nil
}
