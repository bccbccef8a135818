package order

import "time"

// OrderCreated is emitted by CreateOrder (spec.md §4.D).
type OrderCreated struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (OrderCreated) EventType() string { return "OrderCreated" }

// ItemAdded is emitted by AddItem.
type ItemAdded struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int    `json:"unit_price_cents"`
}

func (ItemAdded) EventType() string { return "ItemAdded" }

// ItemRemoved is emitted by RemoveItem.
type ItemRemoved struct {
	ProductID string `json:"product_id"`
}

func (ItemRemoved) EventType() string { return "ItemRemoved" }

// ItemQuantityUpdated is emitted by UpdateItemQuantity.
type ItemQuantityUpdated struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (ItemQuantityUpdated) EventType() string { return "ItemQuantityUpdated" }

// OrderSubmitted is the first of the two events SubmitOrder emits.
type OrderSubmitted struct {
	SubmittedAt time.Time `json:"submitted_at"`
}

func (OrderSubmitted) EventType() string { return "OrderSubmitted" }

// OrderReserved is the second of the two events SubmitOrder emits, advancing
// the order into the Reserved state.
type OrderReserved struct {
	ReservedAt time.Time `json:"reserved_at"`
}

func (OrderReserved) EventType() string { return "OrderReserved" }

// OrderProcessing is emitted by ConfirmPayment.
type OrderProcessing struct {
	PaymentRef  string    `json:"payment_ref"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

func (OrderProcessing) EventType() string { return "OrderProcessing" }

// OrderCompleted is emitted by CompleteOrder.
type OrderCompleted struct {
	TrackingNumber string    `json:"tracking_number"`
	CompletedAt    time.Time `json:"completed_at"`
}

func (OrderCompleted) EventType() string { return "OrderCompleted" }

// OrderCancelled is emitted by CancelOrder.
type OrderCancelled struct {
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

func (OrderCancelled) EventType() string { return "OrderCancelled" }
