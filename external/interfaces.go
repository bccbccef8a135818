// Package external declares the collaborator contracts the
// OrderFulfillmentSaga calls out to (spec.md §4.F): inventory reservation,
// payment, and shipping. Two implementations are provided: external/mock
// (in-memory, used by tests and default wiring) and external/amqprpc (a
// request/reply transport over AMQP for a real deployment).
package external

import (
	"context"

	"orderflow/domain/saga"
)

// InventoryService reserves and releases stock for an order.
type InventoryService interface {
	// Reserve allocates items for orderID and returns a reservation id.
	Reserve(ctx context.Context, orderID string, items []saga.ReservationItem, idempotencyKey string) (reservationID string, err error)

	// Release is the compensation for Reserve; it is idempotent and
	// contracted to eventually succeed (spec.md §4.F).
	Release(ctx context.Context, reservationID string, idempotencyKey string) error
}

// PaymentService charges and refunds an order's payment.
type PaymentService interface {
	// Charge debits amountCents for orderID and returns a payment id.
	Charge(ctx context.Context, orderID string, amountCents int, idempotencyKey string) (paymentID string, err error)

	// Refund is the compensation for Charge; idempotent, contracted to
	// eventually succeed.
	Refund(ctx context.Context, paymentID string, idempotencyKey string) error
}

// ShippingService creates a shipment for an order. It is the saga's final
// step and has no compensation.
type ShippingService interface {
	Create(ctx context.Context, orderID string, address string, idempotencyKey string) (trackingNumber string, err error)
}
