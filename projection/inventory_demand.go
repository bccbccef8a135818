package projection

import (
	"context"
	"sync"

	"orderflow/domain/order"
	"orderflow/eventstore"
)

// InventoryDemand tracks the running per-product quantity demanded by
// non-cancelled orders, fed by ItemAdded/ItemRemoved/OrderCancelled
// (spec.md §4.E's illustrative read models).
type InventoryDemand struct {
	mu sync.RWMutex
	// perOrder tracks each order's current item quantities so a removal or
	// cancellation can subtract exactly what that order had contributed.
	perOrder map[string]map[string]int
	demand   map[string]int
	cursor   int
}

func NewInventoryDemand() *InventoryDemand {
	return &InventoryDemand{
		perOrder: make(map[string]map[string]int),
		demand:   make(map[string]int),
	}
}

func (p *InventoryDemand) Name() string { return "inventory_demand" }
func (p *InventoryDemand) Cursor() int  { return p.cursor }

func (p *InventoryDemand) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.perOrder = make(map[string]map[string]int)
	p.demand = make(map[string]int)
	p.cursor = 0
}

func (p *InventoryDemand) Handle(ctx context.Context, env eventstore.Envelope) error {
	if env.AggregateType != "order" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor++

	orderID := env.AggregateID.String()
	items := p.perOrder[orderID]
	if items == nil {
		items = make(map[string]int)
		p.perOrder[orderID] = items
	}

	switch env.EventType {
	case "ItemAdded":
		var e order.ItemAdded
		if err := eventstore.FromDocument(env.Payload, &e); err != nil {
			return err
		}
		items[e.ProductID] += e.Quantity
		p.demand[e.ProductID] += e.Quantity

	case "ItemRemoved":
		var e order.ItemRemoved
		if err := eventstore.FromDocument(env.Payload, &e); err != nil {
			return err
		}
		p.demand[e.ProductID] -= items[e.ProductID]
		delete(items, e.ProductID)

	case "ItemQuantityUpdated":
		var e order.ItemQuantityUpdated
		if err := eventstore.FromDocument(env.Payload, &e); err != nil {
			return err
		}
		delta := e.Quantity - items[e.ProductID]
		items[e.ProductID] = e.Quantity
		p.demand[e.ProductID] += delta

	case "OrderCancelled":
		for productID, qty := range items {
			p.demand[productID] -= qty
		}
		delete(p.perOrder, orderID)
	}
	return nil
}

// Demand returns the current total quantity demanded for productID across
// all non-cancelled orders.
func (p *InventoryDemand) Demand(productID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.demand[productID]
}

var _ Projection = (*InventoryDemand)(nil)
