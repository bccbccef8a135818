package order

import "orderflow/aggregate"

// Apply advances state deterministically from a single event and
// increments version by one (spec.md §4.D: "apply must be pure — same
// event sequence always produces identical state regardless of wall-time
// or external inputs").
func (o *Order) Apply(event aggregate.DomainEvent) {
	switch e := event.(type) {
	case OrderCreated:
		o.id = e.OrderID
		o.customerID = e.CustomerID
		o.state = StateDraft
		o.items = nil
		o.createdAt = e.CreatedAt
		o.updatedAt = e.CreatedAt

	case ItemAdded:
		if i := o.itemIndex(e.ProductID); i >= 0 {
			o.items[i].Quantity += e.Quantity
		} else {
			o.items = append(o.items, Item{
				ProductID:      e.ProductID,
				ProductName:    e.ProductName,
				Quantity:       e.Quantity,
				UnitPriceCents: e.UnitPriceCents,
			})
		}

	case ItemRemoved:
		if i := o.itemIndex(e.ProductID); i >= 0 {
			o.items = append(o.items[:i], o.items[i+1:]...)
		}

	case ItemQuantityUpdated:
		if i := o.itemIndex(e.ProductID); i >= 0 {
			o.items[i].Quantity = e.Quantity
		}

	case OrderSubmitted:
		o.updatedAt = e.SubmittedAt

	case OrderReserved:
		o.state = StateReserved
		o.updatedAt = e.ReservedAt

	case OrderProcessing:
		o.state = StateProcessing
		o.updatedAt = e.ConfirmedAt

	case OrderCompleted:
		o.state = StateCompleted
		o.trackingNumber = e.TrackingNumber
		o.updatedAt = e.CompletedAt

	case OrderCancelled:
		o.state = StateCancelled
		o.cancellationReason = e.Reason
		o.updatedAt = e.CancelledAt
	}

	o.version++
}
