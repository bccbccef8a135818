package projection

import (
	"context"
	"sync"

	"orderflow/domain/order"
	"orderflow/eventstore"
)

// CustomerOrders indexes customer id to the set of order ids they have
// placed, one of the illustrative read models spec.md §4.E names.
type CustomerOrders struct {
	mu     sync.RWMutex
	byCust map[string]map[string]struct{}
	cursor int
}

func NewCustomerOrders() *CustomerOrders {
	return &CustomerOrders{byCust: make(map[string]map[string]struct{})}
}

func (p *CustomerOrders) Name() string { return "customer_orders" }
func (p *CustomerOrders) Cursor() int  { return p.cursor }

func (p *CustomerOrders) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byCust = make(map[string]map[string]struct{})
	p.cursor = 0
}

func (p *CustomerOrders) Handle(ctx context.Context, env eventstore.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor++

	if env.AggregateType != "order" || env.EventType != "OrderCreated" {
		return nil
	}

	var e order.OrderCreated
	if err := eventstore.FromDocument(env.Payload, &e); err != nil {
		return err
	}

	orders, ok := p.byCust[e.CustomerID]
	if !ok {
		orders = make(map[string]struct{})
		p.byCust[e.CustomerID] = orders
	}
	orders[env.AggregateID.String()] = struct{}{}
	return nil
}

// OrdersFor returns every order id placed by customerID, in no particular
// order.
func (p *CustomerOrders) OrdersFor(customerID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	orders := p.byCust[customerID]
	out := make([]string, 0, len(orders))
	for id := range orders {
		out = append(out, id)
	}
	return out
}

// allCustomers returns every customer id this index has seen.
func (p *CustomerOrders) allCustomers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.byCust))
	for id := range p.byCust {
		out = append(out, id)
	}
	return out
}

var _ Projection = (*CustomerOrders)(nil)
