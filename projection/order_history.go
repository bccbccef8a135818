package projection

import (
	"context"
	"sync"
	"time"

	"orderflow/domain/order"
	"orderflow/eventstore"
)

// HistoryEntry is one terminal-state transition recorded by OrderHistory.
type HistoryEntry struct {
	OrderID        string
	State          order.State
	At             time.Time
	TrackingNumber string
	Reason         string
}

// OrderHistory is an append-only audit log of every order's terminal
// transition (Completed or Cancelled), one of the illustrative read models
// spec.md §4.E names.
type OrderHistory struct {
	mu      sync.RWMutex
	entries []HistoryEntry
	cursor  int
}

func NewOrderHistory() *OrderHistory {
	return &OrderHistory{}
}

func (p *OrderHistory) Name() string { return "order_history" }
func (p *OrderHistory) Cursor() int  { return p.cursor }

func (p *OrderHistory) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = nil
	p.cursor = 0
}

func (p *OrderHistory) Handle(ctx context.Context, env eventstore.Envelope) error {
	if env.AggregateType != "order" {
		return nil
	}

	switch env.EventType {
	case "OrderCompleted":
		var e order.OrderCompleted
		if err := eventstore.FromDocument(env.Payload, &e); err != nil {
			return err
		}
		p.append(HistoryEntry{
			OrderID:        env.AggregateID.String(),
			State:          order.StateCompleted,
			At:             e.CompletedAt,
			TrackingNumber: e.TrackingNumber,
		})

	case "OrderCancelled":
		var e order.OrderCancelled
		if err := eventstore.FromDocument(env.Payload, &e); err != nil {
			return err
		}
		p.append(HistoryEntry{
			OrderID: env.AggregateID.String(),
			State:   order.StateCancelled,
			At:      e.CancelledAt,
			Reason:  e.Reason,
		})

	default:
		p.mu.Lock()
		p.cursor++
		p.mu.Unlock()
	}
	return nil
}

func (p *OrderHistory) append(entry HistoryEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor++
	p.entries = append(p.entries, entry)
}

// Entries returns a defensive copy of every recorded terminal transition.
func (p *OrderHistory) Entries() []HistoryEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]HistoryEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

var _ Projection = (*OrderHistory)(nil)
