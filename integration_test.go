// Integration tests covering the end-to-end scenarios described in
// spec.md §8: order lifecycle, successful fulfillment, compensation on
// payment failure, concurrency conflicts, and crash-recovery of a saga.
package orderflow_test

import (
	"context"
	"fmt"
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

func TestScenario1_CreateAddTotal(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := order.NewHandler(store)
	orderAggID := id.NewAggregateID()

	_, _, _, err := handler.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.CreateOrder(orderAggID.String(), "cust-1")
	})
	require.NoError(t, err)

	o, _, version, err := handler.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.AddItem("SKU-001", "Widget", 2, 1000)
	})
	require.NoError(t, err)

	assert.Equal(t, order.StateDraft, o.State())
	require.Len(t, o.Items(), 1)
	assert.Equal(t, order.Item{ProductID: "SKU-001", ProductName: "Widget", Quantity: 2, UnitPriceCents: 1000}, o.Items()[0])
	assert.Equal(t, 2, version)

	total := 0
	for _, item := range o.Items() {
		total += item.Quantity * item.UnitPriceCents
	}
	assert.Equal(t, 2000, total)
}

func TestScenario2_SubmitTransition(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := order.NewHandler(store)
	orderAggID := id.NewAggregateID()

	_, _, _, err := handler.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.CreateOrder(orderAggID.String(), "cust-1")
	})
	require.NoError(t, err)
	_, _, _, err = handler.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.AddItem("SKU-001", "Widget", 2, 1000)
	})
	require.NoError(t, err)

	o, _, version, err := handler.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.SubmitOrder()
	})
	require.NoError(t, err)

	assert.Equal(t, order.StateReserved, o.State())
	assert.Equal(t, 4, version)
}

func placeAndSubmit(t *testing.T, handler *aggregate.CommandHandler[*order.Order], orderAggID id.AggregateID) {
	t.Helper()
	ctx := context.Background()

	_, _, _, err := handler.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.CreateOrder(orderAggID.String(), "cust-1")
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
}

func TestScenario3_SuccessfulFulfillment(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := order.NewHandler(store)
	orderAggID := id.NewAggregateID()
	placeAndSubmit(t, handler, orderAggID)

	inv, pay, ship := mock.NewInventory(), mock.NewPayment(), mock.NewShipping()
	coord := saga.NewCoordinator(store, inv, pay, ship, idempotency.NewMemoryStore(), compensation.NewMemoryStore())

	items := []domainsaga.ReservationItem{{ProductID: "SKU-001", Quantity: 2}}
	sagaAggID, err := coord.Start(ctx, orderAggID, items, 2000, "1 Infinite Loop")
	require.NoError(t, err)

	status, err := coord.Status(ctx, sagaAggID)
	require.NoError(t, err)
	assert.Equal(t, domainsaga.PhaseCompleted, status.Phase)
	assert.Equal(t, []string{"reserve_inventory", "process_payment", "create_shipment"}, status.CompletedSteps)
	assert.NotEmpty(t, status.TrackingNumber)

	o, _, err := handler.Load(ctx, orderAggID)
	require.NoError(t, err)
	assert.Equal(t, order.StateCompleted, o.State())
	assert.Equal(t, status.TrackingNumber, o.TrackingNumber())
}

func TestScenario4_PaymentFailureCompensates(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := order.NewHandler(store)
	orderAggID := id.NewAggregateID()
	placeAndSubmit(t, handler, orderAggID)

	inv, pay, ship := mock.NewInventory(), mock.NewPayment(), mock.NewShipping()
	pay.FailCharge = fmt.Errorf("card declined")
	coord := saga.NewCoordinator(store, inv, pay, ship, idempotency.NewMemoryStore(), compensation.NewMemoryStore())

	items := []domainsaga.ReservationItem{{ProductID: "SKU-001", Quantity: 2}}
	sagaAggID, err := coord.Start(ctx, orderAggID, items, 2000, "1 Infinite Loop")
	require.NoError(t, err)

	status, err := coord.Status(ctx, sagaAggID)
	require.NoError(t, err)
	assert.Equal(t, domainsaga.PhaseCompensated, status.Phase)
	assert.Equal(t, []string{"reserve_inventory"}, status.CompletedSteps)
	assert.NotEmpty(t, status.FailureReason)
	assert.Len(t, inv.ReleaseCalls, 1)

	o, _, err := handler.Load(ctx, orderAggID)
	require.NoError(t, err)
	assert.Equal(t, order.StateCancelled, o.State())
	assert.NotEmpty(t, o.CancellationReason())
}

func TestScenario5_ConcurrencyConflict(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := order.NewHandler(store)
	orderAggID := id.NewAggregateID()

	_, _, _, err := handler.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.CreateOrder(orderAggID.String(), "cust-1")
	})
	require.NoError(t, err)
	_, _, _, err = handler.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.AddItem("SKU-001", "Widget", 2, 1000)
	})
	require.NoError(t, err)

	o, version, err := handler.Load(ctx, orderAggID)
	require.NoError(t, err)
	require.Equal(t, 2, version)

	// Another actor advances the aggregate to version 3 first.
	_, _, _, err = handler.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.AddItem("SKU-002", "Gadget", 1, 500)
	})
	require.NoError(t, err)

	events, perr := eventstore.ToDocument(order.ItemAdded{ProductID: "SKU-003", ProductName: "Gizmo", Quantity: 1, UnitPriceCents: 100})
	require.NoError(t, perr)
	env, everr := eventstore.NewEnvelope(orderAggID, o.AggregateType(), "ItemAdded", version+1, events)
	require.NoError(t, everr)

	_, err = store.Append(ctx, []eventstore.Envelope{env}, eventstore.Exact(version))

	var conflict *eventstore.ConcurrencyError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 2, conflict.Expected)
	assert.Equal(t, 3, conflict.Actual)
}

func TestScenario6_CrashRecoveryResumesWithoutReissuingPayment(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	orderHandler := order.NewHandler(store)
	orderAggID := id.NewAggregateID()
	placeAndSubmit(t, orderHandler, orderAggID)

	inv, pay, ship := mock.NewInventory(), mock.NewPayment(), mock.NewShipping()
	idem := idempotency.NewMemoryStore()
	pending := compensation.NewMemoryStore()

	// Drive the saga by hand up through StepCompleted(process_payment),
	// standing in for a coordinator that crashed right after that event was
	// durably appended but before create_shipment began.
	sagaHandler := domainsaga.NewHandler(store)
	sagaAggID := id.NewAggregateID()
	sagaID := sagaAggID.String()
	items := []domainsaga.ReservationItem{{ProductID: "SKU-001", Quantity: 2}}

	_, _, _, err := sagaHandler.Execute(ctx, sagaAggID, func(s *domainsaga.Instance) ([]aggregate.DomainEvent, error) {
		return s.Start(sagaID, "order_fulfillment", orderAggID.String(), items, 2000, "1 Infinite Loop")
	})
	require.NoError(t, err)

	_, _, _, err = sagaHandler.Execute(ctx, sagaAggID, func(s *domainsaga.Instance) ([]aggregate.DomainEvent, error) {
		return s.BeginStep("reserve_inventory")
	})
	require.NoError(t, err)
	reservationID, err := inv.Reserve(ctx, orderAggID.String(), items, fmt.Sprintf("%s:reserve_inventory", sagaID))
	require.NoError(t, err)
	_, _, _, err = sagaHandler.Execute(ctx, sagaAggID, func(s *domainsaga.Instance) ([]aggregate.DomainEvent, error) {
		return s.CompleteStep("reserve_inventory", map[string]string{"reservation_id": reservationID})
	})
	require.NoError(t, err)

	_, _, _, err = sagaHandler.Execute(ctx, sagaAggID, func(s *domainsaga.Instance) ([]aggregate.DomainEvent, error) {
		return s.BeginStep("process_payment")
	})
	require.NoError(t, err)
	paymentID, err := pay.Charge(ctx, orderAggID.String(), 2000, fmt.Sprintf("%s:process_payment", sagaID))
	require.NoError(t, err)
	_, _, _, err = sagaHandler.Execute(ctx, sagaAggID, func(s *domainsaga.Instance) ([]aggregate.DomainEvent, error) {
		return s.CompleteStep("process_payment", map[string]string{"payment_id": paymentID})
	})
	require.NoError(t, err)

	require.Len(t, pay.ChargeCalls, 1, "payment must have been invoked exactly once before the simulated crash")

	// Simulate a process restart: a fresh Coordinator over the same store,
	// with no in-memory state of its own, recovers every incomplete saga.
	recovered := saga.NewCoordinator(store, inv, pay, ship, idem, pending)
	require.NoError(t, recovered.RecoverAll(ctx, store))

	status, err := recovered.Status(ctx, sagaAggID)
	require.NoError(t, err)
	assert.Equal(t, domainsaga.PhaseCompleted, status.Phase)
	assert.Equal(t, []string{"reserve_inventory", "process_payment", "create_shipment"}, status.CompletedSteps)
	assert.Len(t, pay.ChargeCalls, 1, "recovery must not re-issue the payment")

	o, _, err := orderHandler.Load(ctx, orderAggID)
	require.NoError(t, err)
	assert.Equal(t, order.StateCompleted, o.State())
}
