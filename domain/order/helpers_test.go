package order_test

import (
	"orderflow/aggregate"
	"orderflow/domain/order"
)

func createOrder(orderID, customerID string) func(*order.Order) ([]aggregate.DomainEvent, error) {
	return func(o *order.Order) ([]aggregate.DomainEvent, error) { return o.CreateOrder(orderID, customerID) }
}

func addItem(productID, productName string, quantity, unitPriceCents int) func(*order.Order) ([]aggregate.DomainEvent, error) {
	return func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.AddItem(productID, productName, quantity, unitPriceCents)
	}
}

func removeItem(productID string) func(*order.Order) ([]aggregate.DomainEvent, error) {
	return func(o *order.Order) ([]aggregate.DomainEvent, error) { return o.RemoveItem(productID) }
}

func submitOrder() func(*order.Order) ([]aggregate.DomainEvent, error) {
	return func(o *order.Order) ([]aggregate.DomainEvent, error) { return o.SubmitOrder() }
}

func confirmPayment(paymentRef string) func(*order.Order) ([]aggregate.DomainEvent, error) {
	return func(o *order.Order) ([]aggregate.DomainEvent, error) { return o.ConfirmPayment(paymentRef) }
}

func completeOrder(trackingNumber string) func(*order.Order) ([]aggregate.DomainEvent, error) {
	return func(o *order.Order) ([]aggregate.DomainEvent, error) { return o.CompleteOrder(trackingNumber) }
}

func cancelOrder(reason string) func(*order.Order) ([]aggregate.DomainEvent, error) {
	return func(o *order.Order) ([]aggregate.DomainEvent, error) { return o.CancelOrder(reason) }
}
