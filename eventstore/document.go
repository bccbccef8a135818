package eventstore

import "encoding/json"

// Document is the structured, JSON-shaped tree used for event payloads and
// metadata (spec.md §9: "modeled as a structured document ... not a
// domain-typed sum"). Keeping the store itself untyped is what lets domain
// events evolve without the store ever needing to know their shape.
type Document map[string]any

// ToDocument converts any JSON-serializable value into a Document. This is
// the only place domain events are translated into the store's wire shape;
// per spec.md §9 it is also the natural seam for schema-evolution logic.
func ToDocument(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// FromDocument decodes a Document back into a concrete Go type. Unknown
// fields in doc are silently ignored, which is what makes the format
// forward-compatible (spec.md §6: "unknown fields ignored on read").
func FromDocument(doc Document, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
