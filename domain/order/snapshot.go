package order

import (
	"time"

	"orderflow/eventstore"
)

// snapshotState is the serialized shape of an Order's state, the `state`
// field of an eventstore.Snapshot (spec.md §3).
type snapshotState struct {
	ID                 string    `json:"id"`
	CustomerID         string    `json:"customer_id"`
	State              State     `json:"state"`
	Items              []Item    `json:"items"`
	Version            int       `json:"version"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	TrackingNumber     string    `json:"tracking_number"`
	CancellationReason string    `json:"cancellation_reason"`
}

// Snapshot serializes the order's current state into a Document suitable
// for Store.SaveSnapshot. Snapshot-creation policy (when to call this) is
// left to the caller, per spec.md §9's open question.
func (o *Order) Snapshot() (eventstore.Document, error) {
	return eventstore.ToDocument(snapshotState{
		ID:                 o.id,
		CustomerID:         o.customerID,
		State:              o.state,
		Items:              o.Items(),
		Version:            o.version,
		CreatedAt:          o.createdAt,
		UpdatedAt:          o.updatedAt,
		TrackingNumber:     o.trackingNumber,
		CancellationReason: o.cancellationReason,
	})
}

// FromSnapshot restores an Order directly from a Document, without folding
// any events. It is the fromSnapshot hook CommandHandler.LoadWithSnapshot
// uses before applying events with version > snapshot.version.
func FromSnapshot(doc eventstore.Document) (*Order, error) {
	var s snapshotState
	if err := eventstore.FromDocument(doc, &s); err != nil {
		return nil, err
	}
	return &Order{
		id:                 s.ID,
		customerID:         s.CustomerID,
		state:              s.State,
		items:              s.Items,
		version:            s.Version,
		createdAt:          s.CreatedAt,
		updatedAt:          s.UpdatedAt,
		trackingNumber:     s.TrackingNumber,
		cancellationReason: s.CancellationReason,
	}, nil
}
