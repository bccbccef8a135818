package order_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/domain/order"
	"orderflow/eventstore"
	"orderflow/internal/id"
)

func TestOrder_CreateAddTotal(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := order.NewHandler(store)
	aggID := id.NewAggregateID()

	agg, _, version, err := handler.Execute(ctx, aggID, createOrder(aggID.String(), "customer-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Equal(t, order.StateDraft, agg.State())

	agg, _, version, err = handler.Execute(ctx, aggID, addItem("SKU-001", "Widget", 2, 1000))
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.Equal(t, order.StateDraft, agg.State())
	assert.Equal(t, 2000, agg.TotalCents())
	require.Len(t, agg.Items(), 1)
	assert.Equal(t, "SKU-001", agg.Items()[0].ProductID)
}

func TestOrder_SubmitTransition(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := order.NewHandler(store)
	aggID := id.NewAggregateID()

	_, _, _, err := handler.Execute(ctx, aggID, createOrder(aggID.String(), "customer-1"))
	require.NoError(t, err)
	_, _, _, err = handler.Execute(ctx, aggID, addItem("SKU-001", "Widget", 2, 1000))
	require.NoError(t, err)

	agg, envelopes, version, err := handler.Execute(ctx, aggID, submitOrder())
	require.NoError(t, err)
	assert.Equal(t, order.StateReserved, agg.State())
	assert.Equal(t, 4, version)
	require.Len(t, envelopes, 2)
	assert.Equal(t, "OrderSubmitted", envelopes[0].EventType)
	assert.Equal(t, "OrderReserved", envelopes[1].EventType)
}

func TestOrder_AddItemRejectsInvalidQuantity(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := order.NewHandler(store)
	aggID := id.NewAggregateID()

	_, _, _, err := handler.Execute(ctx, aggID, createOrder(aggID.String(), "customer-1"))
	require.NoError(t, err)

	_, _, _, err = handler.Execute(ctx, aggID, addItem("SKU-001", "Widget", 0, 1000))
	require.Error(t, err)
	assert.ErrorIs(t, err, order.ErrInvalidQuantity)

	events, err := store.GetEventsForAggregate(ctx, aggID)
	require.NoError(t, err)
	assert.Len(t, events, 1) // only OrderCreated; no event appended for the rejected command
}

func TestOrder_SubmitEmptyOrderFails(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := order.NewHandler(store)
	aggID := id.NewAggregateID()

	_, _, _, err := handler.Execute(ctx, aggID, createOrder(aggID.String(), "customer-1"))
	require.NoError(t, err)

	_, _, _, err = handler.Execute(ctx, aggID, submitOrder())
	require.Error(t, err)
	assert.ErrorIs(t, err, order.ErrOrderEmpty)
}

func TestOrder_CancelCompletedOrderFails(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := order.NewHandler(store)
	aggID := id.NewAggregateID()

	_, _, _, err := handler.Execute(ctx, aggID, createOrder(aggID.String(), "customer-1"))
	require.NoError(t, err)
	_, _, _, err = handler.Execute(ctx, aggID, addItem("SKU-001", "Widget", 1, 500))
	require.NoError(t, err)
	_, _, _, err = handler.Execute(ctx, aggID, submitOrder())
	require.NoError(t, err)
	_, _, _, err = handler.Execute(ctx, aggID, confirmPayment("pay-1"))
	require.NoError(t, err)
	agg, _, _, err := handler.Execute(ctx, aggID, completeOrder("TRACK-1"))
	require.NoError(t, err)
	require.Equal(t, order.StateCompleted, agg.State())

	_, _, _, err = handler.Execute(ctx, aggID, cancelOrder("changed my mind"))
	require.Error(t, err)
	assert.ErrorIs(t, err, order.ErrInvalidStateTransition)
}

func TestOrder_ItemNotFound(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := order.NewHandler(store)
	aggID := id.NewAggregateID()

	_, _, _, err := handler.Execute(ctx, aggID, createOrder(aggID.String(), "customer-1"))
	require.NoError(t, err)

	_, _, _, err = handler.Execute(ctx, aggID, removeItem("does-not-exist"))
	require.Error(t, err)
	assert.ErrorIs(t, err, order.ErrItemNotFound)
}

func TestOrder_AlreadyExists(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := order.NewHandler(store)
	aggID := id.NewAggregateID()

	_, _, _, err := handler.Execute(ctx, aggID, createOrder(aggID.String(), "customer-1"))
	require.NoError(t, err)

	_, _, _, err = handler.Execute(ctx, aggID, createOrder(aggID.String(), "customer-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, order.ErrAlreadyExists)
}

func TestOrder_SnapshotRestoreEquivalence(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := order.NewHandler(store)
	aggID := id.NewAggregateID()

	_, _, _, err := handler.Execute(ctx, aggID, createOrder(aggID.String(), "customer-1"))
	require.NoError(t, err)
	_, _, _, err = handler.Execute(ctx, aggID, addItem("SKU-001", "Widget", 2, 1000))
	require.NoError(t, err)
	agg, _, _, err := handler.Execute(ctx, aggID, submitOrder())
	require.NoError(t, err)

	doc, err := agg.Snapshot()
	require.NoError(t, err)
	require.NoError(t, store.SaveSnapshot(ctx, eventstore.Snapshot{
		AggregateID:   aggID,
		AggregateType: "order",
		Version:       agg.Version(),
		State:         doc,
	}))

	plain, plainVersion, err := handler.Load(ctx, aggID)
	require.NoError(t, err)
	fromSnapshot, snapVersion, err := handler.LoadWithSnapshot(ctx, aggID)
	require.NoError(t, err)

	assert.Equal(t, plainVersion, snapVersion)
	assert.Equal(t, plain.State(), fromSnapshot.State())
	assert.Equal(t, plain.TotalCents(), fromSnapshot.TotalCents())
	assert.Equal(t, plain.Items(), fromSnapshot.Items())
}

func TestOrder_ConcurrencyConflict(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := order.NewHandler(store)
	aggID := id.NewAggregateID()

	_, _, _, err := handler.Execute(ctx, aggID, createOrder(aggID.String(), "customer-1"))
	require.NoError(t, err)
	_, _, _, err = handler.Execute(ctx, aggID, addItem("SKU-001", "Widget", 1, 500))
	require.NoError(t, err)

	// Another actor appends AddItem first, advancing the aggregate to
	// version 3 while the first actor still believes it is at version 2.
	_, _, _, err = handler.Execute(ctx, aggID, addItem("SKU-002", "Gadget", 1, 2500))
	require.NoError(t, err)

	env, err := eventstore.NewEnvelope(aggID, "order", "ItemAdded", 3, eventstore.Document{
		"product_id": "SKU-003", "product_name": "Gizmo", "quantity": 1, "unit_price_cents": 100,
	})
	require.NoError(t, err)
	_, err = store.Append(ctx, []eventstore.Envelope{env}, eventstore.Exact(2))
	require.Error(t, err)

	var conflict *eventstore.ConcurrencyError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 2, conflict.Expected)
	assert.Equal(t, 3, conflict.Actual)
}
