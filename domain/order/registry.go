package order

import (
	"orderflow/aggregate"
	"orderflow/eventstore"
)

// NewRegistry returns the event-type decoder registry for the Order
// aggregate, for use by an aggregate.CommandHandler[*Order].
func NewRegistry() aggregate.Registry {
	r := aggregate.Registry{}
	aggregate.RegisterJSON[OrderCreated](r, "OrderCreated")
	aggregate.RegisterJSON[ItemAdded](r, "ItemAdded")
	aggregate.RegisterJSON[ItemRemoved](r, "ItemRemoved")
	aggregate.RegisterJSON[ItemQuantityUpdated](r, "ItemQuantityUpdated")
	aggregate.RegisterJSON[OrderSubmitted](r, "OrderSubmitted")
	aggregate.RegisterJSON[OrderReserved](r, "OrderReserved")
	aggregate.RegisterJSON[OrderProcessing](r, "OrderProcessing")
	aggregate.RegisterJSON[OrderCompleted](r, "OrderCompleted")
	aggregate.RegisterJSON[OrderCancelled](r, "OrderCancelled")
	return r
}

// NewHandler builds the CommandHandler for the Order aggregate, wired with
// its registry, zero-value factory, and snapshot restorer.
func NewHandler(store eventstore.Store) *aggregate.CommandHandler[*Order] {
	return aggregate.NewCommandHandler[*Order](store, "order", NewRegistry(), New, FromSnapshot)
}
