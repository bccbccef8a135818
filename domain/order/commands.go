package order

import (
	"time"

	"orderflow/aggregate"
)

// CreateOrder is valid only against a not-yet-created order (spec.md §4.D).
func (o *Order) CreateOrder(orderID, customerID string) ([]aggregate.DomainEvent, error) {
	if o.created() {
		return nil, &AlreadyExistsError{OrderID: orderID}
	}
	return []aggregate.DomainEvent{
		OrderCreated{OrderID: orderID, CustomerID: customerID, CreatedAt: time.Now().UTC()},
	}, nil
}

// AddItem requires Draft state, quantity >= 1, unit price >= 0.
func (o *Order) AddItem(productID, productName string, quantity, unitPriceCents int) ([]aggregate.DomainEvent, error) {
	if o.state != StateDraft {
		return nil, &InvalidStateTransitionError{From: o.state, Operation: "add item"}
	}
	if quantity < 1 {
		return nil, &InvalidQuantityError{ProductID: productID, Quantity: quantity}
	}
	if unitPriceCents < 0 {
		return nil, &InvalidQuantityError{ProductID: productID, Quantity: unitPriceCents}
	}
	return []aggregate.DomainEvent{
		ItemAdded{
			ProductID:      productID,
			ProductName:    productName,
			Quantity:       quantity,
			UnitPriceCents: unitPriceCents,
		},
	}, nil
}

// RemoveItem requires Draft state and an existing product.
func (o *Order) RemoveItem(productID string) ([]aggregate.DomainEvent, error) {
	if o.state != StateDraft {
		return nil, &InvalidStateTransitionError{From: o.state, Operation: "remove item"}
	}
	if o.itemIndex(productID) < 0 {
		return nil, &ItemNotFoundError{ProductID: productID}
	}
	return []aggregate.DomainEvent{ItemRemoved{ProductID: productID}}, nil
}

// UpdateItemQuantity requires Draft state, an existing product, qty >= 1.
func (o *Order) UpdateItemQuantity(productID string, quantity int) ([]aggregate.DomainEvent, error) {
	if o.state != StateDraft {
		return nil, &InvalidStateTransitionError{From: o.state, Operation: "update item quantity"}
	}
	if o.itemIndex(productID) < 0 {
		return nil, &ItemNotFoundError{ProductID: productID}
	}
	if quantity < 1 {
		return nil, &InvalidQuantityError{ProductID: productID, Quantity: quantity}
	}
	return []aggregate.DomainEvent{
		ItemQuantityUpdated{ProductID: productID, Quantity: quantity},
	}, nil
}

// SubmitOrder requires Draft state and a non-empty item list. It emits two
// events, OrderSubmitted then OrderReserved, moving the order to Reserved.
func (o *Order) SubmitOrder() ([]aggregate.DomainEvent, error) {
	if o.state != StateDraft {
		return nil, &InvalidStateTransitionError{From: o.state, Operation: "submit"}
	}
	if len(o.items) == 0 {
		return nil, &OrderEmptyError{}
	}
	now := time.Now().UTC()
	return []aggregate.DomainEvent{
		OrderSubmitted{SubmittedAt: now},
		OrderReserved{ReservedAt: now},
	}, nil
}

// ConfirmPayment requires Reserved state.
func (o *Order) ConfirmPayment(paymentRef string) ([]aggregate.DomainEvent, error) {
	if o.state != StateReserved {
		return nil, &InvalidStateTransitionError{From: o.state, Operation: "confirm payment"}
	}
	return []aggregate.DomainEvent{
		OrderProcessing{PaymentRef: paymentRef, ConfirmedAt: time.Now().UTC()},
	}, nil
}

// CompleteOrder requires Processing state.
func (o *Order) CompleteOrder(trackingNumber string) ([]aggregate.DomainEvent, error) {
	if o.state != StateProcessing {
		return nil, &InvalidStateTransitionError{From: o.state, Operation: "complete"}
	}
	return []aggregate.DomainEvent{
		OrderCompleted{TrackingNumber: trackingNumber, CompletedAt: time.Now().UTC()},
	}, nil
}

// CancelOrder requires Draft, Reserved, or Processing state.
func (o *Order) CancelOrder(reason string) ([]aggregate.DomainEvent, error) {
	switch o.state {
	case StateDraft, StateReserved, StateProcessing:
	default:
		return nil, &InvalidStateTransitionError{From: o.state, Operation: "cancel"}
	}
	return []aggregate.DomainEvent{
		OrderCancelled{Reason: reason, CancelledAt: time.Now().UTC()},
	}, nil
}
