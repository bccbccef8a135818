// Package aggregate provides the generic event-sourced aggregate and
// command-handler framework (spec.md §4.C): one implementation shared by
// every aggregate type instead of a hand-written repository per type.
package aggregate

// DomainEvent is the typed, in-memory shape of a domain event before it is
// converted to an eventstore.Document at the store boundary (spec.md §9:
// "domain events are converted to/from documents at the event-store
// boundary to keep the store domain-agnostic").
type DomainEvent interface {
	EventType() string
}

// Aggregate is an event-sourced entity (spec.md §4.C): Apply is pure and
// deterministic — given the same event it always produces the same state
// transition and advances Version by exactly one. Command methods live on
// the concrete aggregate type, not on this interface, and must not mutate
// the receiver; only Apply mutates state.
type Aggregate interface {
	AggregateType() string
	Version() int
	Apply(event DomainEvent)
}
