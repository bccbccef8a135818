package projection

import (
	"context"
	"fmt"
	"sync"

	"orderflow/domain/order"
	"orderflow/eventstore"
)

// Notifier sends a message to a customer, grounded on the teacher's
// notification.Notifier interface (application/notification/service.go).
// There the notifier was wired directly to RabbitMQ from a freestanding
// service; here it is reframed as an ordinary projection consumer of the
// event stream.
type Notifier interface {
	SendMessage(ctx context.Context, customerID, message string) error
}

// LogNotifier is the teacher's MockNotifier: it records each message in
// Sent as "customerID: message" and does not write it anywhere else.
type LogNotifier struct {
	Sent []string
}

func (n *LogNotifier) SendMessage(ctx context.Context, customerID, message string) error {
	n.Sent = append(n.Sent, fmt.Sprintf("%s: %s", customerID, message))
	return nil
}

// Notifications reacts to OrderCompleted/OrderCancelled and notifies the
// order's customer, per SPEC_FULL.md's supplemental notification
// projection. It resolves customer id from CustomerOrders rather than
// loading the order aggregate directly, since it is itself a projection
// and should only depend on other read models.
type Notifications struct {
	mu       sync.Mutex
	customer *CustomerOrders
	notifier Notifier
	cursor   int
}

func NewNotifications(customer *CustomerOrders, notifier Notifier) *Notifications {
	return &Notifications{customer: customer, notifier: notifier}
}

func (p *Notifications) Name() string { return "notifications" }
func (p *Notifications) Cursor() int  { return p.cursor }

func (p *Notifications) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = 0
}

func (p *Notifications) Handle(ctx context.Context, env eventstore.Envelope) error {
	if env.AggregateType != "order" {
		return nil
	}

	p.mu.Lock()
	p.cursor++
	p.mu.Unlock()

	orderID := env.AggregateID.String()

	switch env.EventType {
	case "OrderCompleted":
		var e order.OrderCompleted
		if err := eventstore.FromDocument(env.Payload, &e); err != nil {
			return err
		}
		message := fmt.Sprintf("Order %s completed, tracking number %s", orderID, e.TrackingNumber)
		return p.notifier.SendMessage(ctx, p.customerFor(orderID), message)

	case "OrderCancelled":
		var e order.OrderCancelled
		if err := eventstore.FromDocument(env.Payload, &e); err != nil {
			return err
		}
		message := fmt.Sprintf("Order %s cancelled: %s", orderID, e.Reason)
		return p.notifier.SendMessage(ctx, p.customerFor(orderID), message)
	}
	return nil
}

// customerFor does a linear scan over the customer index, acceptable at
// the notification volume this projection expects; a high-volume
// deployment would maintain its own order->customer map instead.
func (p *Notifications) customerFor(orderID string) string {
	for _, customerID := range p.customer.allCustomers() {
		for _, id := range p.customer.OrdersFor(customerID) {
			if id == orderID {
				return customerID
			}
		}
	}
	return "unknown"
}

var _ Projection = (*Notifications)(nil)
