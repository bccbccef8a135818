package eventstore

import (
	"errors"
	"time"

	"orderflow/internal/id"
)

// Envelope is the durable, persisted unit of an event store (spec.md §3).
type Envelope struct {
	EventID       id.EventID
	EventType     string
	AggregateID   id.AggregateID
	AggregateType string
	Version       int
	Timestamp     time.Time
	Payload       Document
	Metadata      Document
}

// envelopeOptions carries the optional, builder-style overrides used
// primarily by tests (spec.md §4.A: "Supplies a builder-style construction
// path for tests").
type envelopeOptions struct {
	eventID   id.EventID
	timestamp time.Time
	metadata  Document
}

// EnvelopeOption customizes NewEnvelope's output.
type EnvelopeOption func(*envelopeOptions)

// WithEventID pins the envelope's EventID instead of generating one.
func WithEventID(eventID id.EventID) EnvelopeOption {
	return func(o *envelopeOptions) { o.eventID = eventID }
}

// WithTimestamp pins the envelope's Timestamp instead of defaulting to now.
func WithTimestamp(ts time.Time) EnvelopeOption {
	return func(o *envelopeOptions) { o.timestamp = ts }
}

// WithMetadata attaches metadata (e.g. a correlation id) to the envelope.
func WithMetadata(md Document) EnvelopeOption {
	return func(o *envelopeOptions) { o.metadata = md }
}

// NewEnvelope constructs an Envelope, enforcing the invariants from spec.md
// §4.A: version must be at least 1, event_type and aggregate_type must be
// non-empty, and timestamp defaults to "now" (UTC, microsecond resolution)
// when not supplied via WithTimestamp.
func NewEnvelope(
	aggregateID id.AggregateID,
	aggregateType string,
	eventType string,
	version int,
	payload Document,
	opts ...EnvelopeOption,
) (Envelope, error) {
	if version < 1 {
		return Envelope{}, errors.New("eventstore: version must be >= 1")
	}
	if eventType == "" {
		return Envelope{}, errors.New("eventstore: event_type must be non-empty")
	}
	if aggregateType == "" {
		return Envelope{}, errors.New("eventstore: aggregate_type must be non-empty")
	}

	o := envelopeOptions{
		eventID:   id.NewEventID(),
		timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return Envelope{
		EventID:       o.eventID,
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       version,
		Timestamp:     o.timestamp.UTC().Truncate(time.Microsecond),
		Payload:       payload,
		Metadata:      o.metadata,
	}, nil
}
