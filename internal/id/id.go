// Package id provides the opaque 128-bit identifiers used throughout the
// core: aggregate ids and event ids. Both wrap a uuid.UUID so that the two
// cannot be mixed up at a call site by accident.
package id

import "github.com/google/uuid"

// AggregateID uniquely and stably identifies one aggregate for its lifetime.
type AggregateID uuid.UUID

// EventID uniquely identifies one event envelope.
type EventID uuid.UUID

// NewAggregateID generates a fresh, random AggregateID.
func NewAggregateID() AggregateID {
	return AggregateID(uuid.New())
}

// NewEventID generates a fresh, random EventID.
func NewEventID() EventID {
	return EventID(uuid.New())
}

func (a AggregateID) String() string { return uuid.UUID(a).String() }
func (e EventID) String() string     { return uuid.UUID(e).String() }

// IsZero reports whether the id is the zero value (never generated).
func (a AggregateID) IsZero() bool { return a == AggregateID{} }
func (e EventID) IsZero() bool     { return e == EventID{} }

// ParseAggregateID parses a canonical UUID string into an AggregateID.
func ParseAggregateID(s string) (AggregateID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return AggregateID{}, err
	}
	return AggregateID(u), nil
}

// ParseEventID parses a canonical UUID string into an EventID.
func ParseEventID(s string) (EventID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return EventID{}, err
	}
	return EventID(u), nil
}

// MarshalText implements encoding.TextMarshaler so ids serialize as plain
// UUID strings in JSON payloads rather than as byte arrays.
func (a AggregateID) MarshalText() ([]byte, error) { return []byte(a.String()), nil }
func (e EventID) MarshalText() ([]byte, error)     { return []byte(e.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AggregateID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*a = AggregateID(u)
	return nil
}

func (e *EventID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*e = EventID(u)
	return nil
}
