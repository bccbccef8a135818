package aggregate

import "orderflow/eventstore"

// EventDecoder turns a persisted Document back into the typed DomainEvent it
// was encoded from, so a freshly loaded aggregate's Apply can type-switch on
// concrete event structs rather than on documents.
type EventDecoder func(doc eventstore.Document) (DomainEvent, error)

// Registry maps event_type strings to decoders. One Registry is built per
// aggregate type and shared by its CommandHandler.
type Registry map[string]EventDecoder

// RegisterJSON registers event type T (a struct implementing DomainEvent via
// a value receiver) under eventType, using the Document round trip for
// encoding and decoding (grounded on the JSONCodec[T] pattern: one generic
// constructor standing in for a codec per event type).
func RegisterJSON[T DomainEvent](r Registry, eventType string) {
	r[eventType] = func(doc eventstore.Document) (DomainEvent, error) {
		var v T
		if err := eventstore.FromDocument(doc, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
