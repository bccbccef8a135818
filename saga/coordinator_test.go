package saga_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/aggregate"
	"orderflow/domain/order"
	domainsaga "orderflow/domain/saga"
	"orderflow/eventstore"
	"orderflow/external/mock"
	"orderflow/infrastructure/compensation"
	"orderflow/infrastructure/idempotency"
	"orderflow/internal/id"
	"orderflow/saga"
)

func newTestOrder(t *testing.T, store eventstore.Store) id.AggregateID {
	t.Helper()
	handler := order.NewHandler(store)
	ctx := context.Background()
	orderAggID := id.NewAggregateID()

	_, _, _, err := handler.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.CreateOrder(orderAggID.String(), "customer-1")
	})
	require.NoError(t, err)
	_, _, _, err = handler.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.AddItem("SKU-001", "Widget", 2, 1000)
	})
	require.NoError(t, err)
	_, _, _, err = handler.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.SubmitOrder()
	})
	require.NoError(t, err)
	return orderAggID
}

func TestCoordinator_HappyPathCompletesOrder(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	orderAggID := newTestOrder(t, store)

	inv, pay, ship := mock.NewInventory(), mock.NewPayment(), mock.NewShipping()
	coord := saga.NewCoordinator(store, inv, pay, ship, idempotency.NewMemoryStore(), compensation.NewMemoryStore())

	sagaAggID, err := coord.Start(ctx, orderAggID,
		[]domainsaga.ReservationItem{{ProductID: "SKU-001", Quantity: 2}}, 2000, "1 Main St")
	require.NoError(t, err)

	status, err := coord.Status(ctx, sagaAggID)
	require.NoError(t, err)
	assert.Equal(t, domainsaga.PhaseCompleted, status.Phase)
	assert.NotEmpty(t, status.TrackingNumber)

	orderHandler := order.NewHandler(store)
	ord, _, err := orderHandler.Load(ctx, orderAggID)
	require.NoError(t, err)
	assert.Equal(t, order.StateCompleted, ord.State())
}

func TestCoordinator_PaymentFailureCompensatesReservation(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	orderAggID := newTestOrder(t, store)

	inv := mock.NewInventory()
	pay := mock.NewPayment()
	pay.FailCharge = assert.AnError
	pay.FailTransient = false
	ship := mock.NewShipping()

	coord := saga.NewCoordinator(store, inv, pay, ship, idempotency.NewMemoryStore(), compensation.NewMemoryStore())

	sagaAggID, err := coord.Start(ctx, orderAggID,
		[]domainsaga.ReservationItem{{ProductID: "SKU-001", Quantity: 2}}, 2000, "1 Main St")
	require.NoError(t, err)

	status, err := coord.Status(ctx, sagaAggID)
	require.NoError(t, err)
	assert.Equal(t, domainsaga.PhaseCompensated, status.Phase)
	assert.Len(t, inv.ReleaseCalls, 1)

	orderHandler := order.NewHandler(store)
	ord, _, err := orderHandler.Load(ctx, orderAggID)
	require.NoError(t, err)
	assert.Equal(t, order.StateCancelled, ord.State())
}

func TestCoordinator_RecoverAllResumesIncompleteSaga(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	orderAggID := newTestOrder(t, store)

	sagaHandler := domainsaga.NewHandler(store)
	sagaAggID := id.NewAggregateID()
	_, _, _, err := sagaHandler.Execute(ctx, sagaAggID, func(s *domainsaga.Instance) ([]aggregate.DomainEvent, error) {
		return s.Start(sagaAggID.String(), "order_fulfillment", orderAggID.String(),
			[]domainsaga.ReservationItem{{ProductID: "SKU-001", Quantity: 2}}, 2000, "1 Main St")
	})
	require.NoError(t, err)

	inv, pay, ship := mock.NewInventory(), mock.NewPayment(), mock.NewShipping()
	coord := saga.NewCoordinator(store, inv, pay, ship, idempotency.NewMemoryStore(), compensation.NewMemoryStore())

	require.NoError(t, coord.RecoverAll(ctx, store))

	status, err := coord.Status(ctx, sagaAggID)
	require.NoError(t, err)
	assert.Equal(t, domainsaga.PhaseCompleted, status.Phase)
}

func TestCoordinator_RetryCompensationFinalizesDeferredStep(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	orderAggID := newTestOrder(t, store)

	inv := mock.NewInventory()
	// The inline compensation budget makes 3 calls before deferring
	// (MaxAttempts=2 means attempts 0, 1, 2 all run); failing exactly 3
	// times exhausts the inline budget and hands off to RetryCompensation,
	// which succeeds on the 4th call.
	inv.FailReleaseTimes = 3

	pay := mock.NewPayment()
	pay.FailCharge = assert.AnError

	ship := mock.NewShipping()
	pendingStore := compensation.NewMemoryStore()
	coord := saga.NewCoordinator(store, inv, pay, ship, idempotency.NewMemoryStore(), pendingStore)

	sagaAggID, err := coord.Start(ctx, orderAggID,
		[]domainsaga.ReservationItem{{ProductID: "SKU-001", Quantity: 1}}, 1000, "1 Main St")
	require.NoError(t, err)

	status, err := coord.Status(ctx, sagaAggID)
	require.NoError(t, err)
	assert.Equal(t, domainsaga.PhaseCompensating, status.Phase, "release deferred to the background worker")

	pending, err := pendingStore.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "reserve_inventory", pending[0].Step)

	require.NoError(t, coord.RetryCompensation(ctx, pending[0].SagaID, pending[0].Step))

	status, err = coord.Status(ctx, sagaAggID)
	require.NoError(t, err)
	assert.Equal(t, domainsaga.PhaseCompensated, status.Phase)

	orderHandler := order.NewHandler(store)
	ord, _, err := orderHandler.Load(ctx, orderAggID)
	require.NoError(t, err)
	assert.Equal(t, order.StateCancelled, ord.State())
}
