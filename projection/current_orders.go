package projection

import (
	"context"
	"sync"

	"orderflow/domain/order"
	"orderflow/eventstore"
)

// OrderView is the read-model shape served by the HTTP surface's
// GET /orders and GET /orders/{id} (spec.md §6).
type OrderView struct {
	OrderID        string
	CustomerID     string
	State          order.State
	Items          []order.Item
	TotalCents     int
	TrackingNumber string
	CancelReason   string
}

// CurrentOrders is an in-memory map of open (non-terminal) orders by id,
// one of the illustrative read models spec.md §4.E names.
type CurrentOrders struct {
	mu     sync.RWMutex
	orders map[string]*OrderView
	cursor int
}

func NewCurrentOrders() *CurrentOrders {
	return &CurrentOrders{orders: make(map[string]*OrderView)}
}

func (p *CurrentOrders) Name() string { return "current_orders" }
func (p *CurrentOrders) Cursor() int  { return p.cursor }

func (p *CurrentOrders) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = make(map[string]*OrderView)
	p.cursor = 0
}

func (p *CurrentOrders) Handle(ctx context.Context, env eventstore.Envelope) error {
	if env.AggregateType != "order" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor++

	id := env.AggregateID.String()
	view := p.orders[id]
	if view == nil {
		view = &OrderView{OrderID: id}
	}

	switch env.EventType {
	case "OrderCreated":
		var e order.OrderCreated
		if err := eventstore.FromDocument(env.Payload, &e); err != nil {
			return err
		}
		view.CustomerID = e.CustomerID
		view.State = order.StateDraft

	case "ItemAdded":
		var e order.ItemAdded
		if err := eventstore.FromDocument(env.Payload, &e); err != nil {
			return err
		}
		applyItemAdded(view, e)

	case "ItemRemoved":
		var e order.ItemRemoved
		if err := eventstore.FromDocument(env.Payload, &e); err != nil {
			return err
		}
		applyItemRemoved(view, e)

	case "ItemQuantityUpdated":
		var e order.ItemQuantityUpdated
		if err := eventstore.FromDocument(env.Payload, &e); err != nil {
			return err
		}
		applyItemQuantityUpdated(view, e)

	case "OrderReserved":
		view.State = order.StateReserved

	case "OrderProcessing":
		view.State = order.StateProcessing

	case "OrderCompleted":
		var e order.OrderCompleted
		if err := eventstore.FromDocument(env.Payload, &e); err != nil {
			return err
		}
		view.State = order.StateCompleted
		view.TrackingNumber = e.TrackingNumber
		delete(p.orders, id)
		return nil

	case "OrderCancelled":
		var e order.OrderCancelled
		if err := eventstore.FromDocument(env.Payload, &e); err != nil {
			return err
		}
		view.State = order.StateCancelled
		view.CancelReason = e.Reason
		delete(p.orders, id)
		return nil
	}

	recomputeTotal(view)
	p.orders[id] = view
	return nil
}

// Get returns a snapshot of an open order's view, if tracked.
func (p *CurrentOrders) Get(orderID string) (OrderView, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.orders[orderID]
	if !ok {
		return OrderView{}, false
	}
	return *v, true
}

// List returns a snapshot of every currently open order, for GET /orders.
func (p *CurrentOrders) List() []OrderView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]OrderView, 0, len(p.orders))
	for _, v := range p.orders {
		out = append(out, *v)
	}
	return out
}

func applyItemAdded(view *OrderView, e order.ItemAdded) {
	for i := range view.Items {
		if view.Items[i].ProductID == e.ProductID {
			view.Items[i].Quantity += e.Quantity
			return
		}
	}
	view.Items = append(view.Items, order.Item{
		ProductID:      e.ProductID,
		ProductName:    e.ProductName,
		Quantity:       e.Quantity,
		UnitPriceCents: e.UnitPriceCents,
	})
}

func applyItemRemoved(view *OrderView, e order.ItemRemoved) {
	for i := range view.Items {
		if view.Items[i].ProductID == e.ProductID {
			view.Items = append(view.Items[:i], view.Items[i+1:]...)
			return
		}
	}
}

func applyItemQuantityUpdated(view *OrderView, e order.ItemQuantityUpdated) {
	for i := range view.Items {
		if view.Items[i].ProductID == e.ProductID {
			view.Items[i].Quantity = e.Quantity
			return
		}
	}
}

func recomputeTotal(view *OrderView) {
	total := 0
	for _, item := range view.Items {
		total += item.Quantity * item.UnitPriceCents
	}
	view.TotalCents = total
}

var _ Projection = (*CurrentOrders)(nil)
