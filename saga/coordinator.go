package saga

import (
	"context"
	"encoding/json"
	"fmt"

	"orderflow/aggregate"
	"orderflow/domain/order"
	"orderflow/domain/saga"
	"orderflow/eventstore"
	"orderflow/external"
	"orderflow/infrastructure/compensation"
	"orderflow/infrastructure/idempotency"
	"orderflow/internal/id"
	"orderflow/internal/obslog"
)

const (
	stepReserveInventory = "reserve_inventory"
	stepProcessPayment   = "process_payment"
	stepCreateShipment   = "create_shipment"
)

// Status is the read view of a saga instance returned by the coordinator's
// query operation (spec.md §4.F "status(saga_id)").
type Status struct {
	SagaID         string
	OrderID        string
	Phase          saga.Phase
	CompletedSteps []string
	ReservationID  string
	PaymentID      string
	TrackingNumber string
	FailureReason  string
}

// Coordinator orchestrates the OrderFulfillmentSaga: a three-step workflow
// over InventoryService, PaymentService, and ShippingService, with
// compensation in reverse order on permanent failure. All progress is
// durable in the SagaInstance aggregate so a crash can resume from it.
type Coordinator struct {
	sagaHandler  *aggregate.CommandHandler[*saga.Instance]
	orderHandler *aggregate.CommandHandler[*order.Order]

	inventory external.InventoryService
	payment   external.PaymentService
	shipping  external.ShippingService

	idempotency idempotency.Store
	pending     compensation.Store

	log *obslog.Logger
}

func NewCoordinator(
	store eventstore.Store,
	inventory external.InventoryService,
	payment external.PaymentService,
	shipping external.ShippingService,
	idem idempotency.Store,
	pendingCompensations compensation.Store,
) *Coordinator {
	return &Coordinator{
		sagaHandler:  saga.NewHandler(store),
		orderHandler: order.NewHandler(store),
		inventory:    inventory,
		payment:      payment,
		shipping:     shipping,
		idempotency:  idem,
		pending:      pendingCompensations,
		log:          obslog.New("saga.coordinator"),
	}
}

// Start begins the OrderFulfillmentSaga for orderAggID and drives it
// synchronously through completion, failure, or a point where a
// compensation has been handed off to the background compensation.Worker.
// The sagaID returned is the aggregate id of the new SagaInstance; callers
// persist it alongside the order if they need to look the saga back up.
func (c *Coordinator) Start(ctx context.Context, orderAggID id.AggregateID, items []saga.ReservationItem, amountCents int, shippingAddress string) (id.AggregateID, error) {
	sagaAggID := id.NewAggregateID()
	sagaID := sagaAggID.String()

	_, _, _, err := c.sagaHandler.Execute(ctx, sagaAggID, func(s *saga.Instance) ([]aggregate.DomainEvent, error) {
		return s.Start(sagaID, "order_fulfillment", orderAggID.String(), items, amountCents, shippingAddress)
	})
	if err != nil {
		return id.AggregateID{}, fmt.Errorf("saga: start: %w", err)
	}

	c.log.Info("saga %s started for order %s", sagaID, orderAggID)
	c.run(ctx, sagaAggID, orderAggID)
	return sagaAggID, nil
}

// Resume continues a saga instance that was interrupted mid-workflow (a
// process crash between steps). It is safe to call on a saga that has
// already reached a terminal phase; it is then a no-op.
func (c *Coordinator) Resume(ctx context.Context, sagaAggID, orderAggID id.AggregateID) {
	c.run(ctx, sagaAggID, orderAggID)
}

// RecoverAll scans the event store for every SagaInstance that has not
// reached a terminal phase and resumes it, per spec.md §4.F's recovery
// procedure. It should be called once at process startup before the HTTP
// surface is opened.
func (c *Coordinator) RecoverAll(ctx context.Context, store eventstore.Store) error {
	started, err := store.GetEventsByType(ctx, "SagaStarted")
	if err != nil {
		return fmt.Errorf("saga: recover: list started sagas: %w", err)
	}

	for _, env := range started {
		sagaAggID := env.AggregateID
		inst, _, err := c.sagaHandler.Load(ctx, sagaAggID)
		if err != nil {
			c.log.Error("recover: load saga %s: %v", sagaAggID, err)
			continue
		}
		if isTerminal(inst.Phase()) {
			continue
		}

		orderAggID, err := id.ParseAggregateID(inst.OrderID())
		if err != nil {
			c.log.Error("recover: parse order id %q for saga %s: %v", inst.OrderID(), sagaAggID, err)
			continue
		}

		c.log.Info("recovering saga %s from phase %s", sagaAggID, inst.Phase())
		c.run(ctx, sagaAggID, orderAggID)
	}
	return nil
}

func isTerminal(p saga.Phase) bool {
	return p == saga.PhaseCompleted || p == saga.PhaseCompensated || p == saga.PhaseFailed
}

// Status loads a saga instance and reports its current view.
func (c *Coordinator) Status(ctx context.Context, sagaAggID id.AggregateID) (Status, error) {
	inst, _, err := c.sagaHandler.Load(ctx, sagaAggID)
	if err != nil {
		return Status{}, fmt.Errorf("saga: status: %w", err)
	}
	return Status{
		SagaID:         inst.ID(),
		OrderID:        inst.OrderID(),
		Phase:          inst.Phase(),
		CompletedSteps: inst.CompletedSteps(),
		ReservationID:  inst.ReservationID(),
		PaymentID:      inst.PaymentID(),
		TrackingNumber: inst.TrackingNumber(),
		FailureReason:  inst.FailureReason(),
	}, nil
}

// run drives the saga from its current persisted phase to the next
// suspension point: a terminal phase, or a compensation handed off to the
// background worker.
func (c *Coordinator) run(ctx context.Context, sagaAggID, orderAggID id.AggregateID) {
	inst, _, err := c.sagaHandler.Load(ctx, sagaAggID)
	if err != nil {
		c.log.Error("run: load saga %s: %v", sagaAggID, err)
		return
	}

	steps := []string{stepReserveInventory, stepProcessPayment, stepCreateShipment}
	startIdx := len(inst.CompletedSteps())

	switch inst.Phase() {
	case saga.PhaseCompleted, saga.PhaseCompensated, saga.PhaseFailed:
		return
	case saga.PhaseCompensating:
		c.compensate(ctx, sagaAggID, orderAggID)
		return
	}

	for i := startIdx; i < len(steps); i++ {
		step := steps[i]
		ok := c.runStep(ctx, sagaAggID, step)
		if !ok {
			c.compensate(ctx, sagaAggID, orderAggID)
			return
		}
	}

	c.complete(ctx, sagaAggID, orderAggID)
}

// runStep executes one forward step (idempotently) and records its
// outcome. It returns false if the step failed permanently, in which case
// the saga has already been transitioned to Compensating.
func (c *Coordinator) runStep(ctx context.Context, sagaAggID id.AggregateID, step string) bool {
	if _, _, _, err := c.sagaHandler.Execute(ctx, sagaAggID, func(s *saga.Instance) ([]aggregate.DomainEvent, error) {
		return s.BeginStep(step)
	}); err != nil {
		c.log.Error("begin step %s: %v", step, err)
		return false
	}

	sagaID := sagaAggID.String()
	idemKey := fmt.Sprintf("%s:%s", sagaID, step)

	resultFields, err := c.callForward(ctx, sagaAggID, step, idemKey)
	if err != nil {
		reason := err.Error()
		if _, _, _, failErr := c.sagaHandler.Execute(ctx, sagaAggID, func(s *saga.Instance) ([]aggregate.DomainEvent, error) {
			return s.FailStep(step, reason)
		}); failErr != nil {
			c.log.Error("fail step %s: %v", step, failErr)
		}
		return false
	}

	if _, _, _, err := c.sagaHandler.Execute(ctx, sagaAggID, func(s *saga.Instance) ([]aggregate.DomainEvent, error) {
		return s.CompleteStep(step, resultFields)
	}); err != nil {
		c.log.Error("complete step %s: %v", step, err)
		return false
	}
	return true
}

// callForward invokes the external collaborator for step, honoring the
// idempotency cache and the forward-step retry budget.
func (c *Coordinator) callForward(ctx context.Context, sagaAggID id.AggregateID, step, idemKey string) (map[string]string, error) {
	if cached, found, err := c.idempotency.Get(ctx, idemKey); err == nil && found {
		var fields map[string]string
		if err := json.Unmarshal([]byte(cached), &fields); err == nil {
			return fields, nil
		}
	}

	inst, _, err := c.sagaHandler.Load(ctx, sagaAggID)
	if err != nil {
		return nil, err
	}

	var fields map[string]string
	budget := ForwardStepBudget()
	err = budget.run(ctx, external.IsTransient, func() error {
		var callErr error
		switch step {
		case stepReserveInventory:
			var reservationID string
			reservationID, callErr = c.inventory.Reserve(ctx, inst.OrderID(), inst.Items(), idemKey)
			if callErr == nil {
				fields = map[string]string{"reservation_id": reservationID}
			}
		case stepProcessPayment:
			var paymentID string
			paymentID, callErr = c.payment.Charge(ctx, inst.OrderID(), inst.AmountCents(), idemKey)
			if callErr == nil {
				fields = map[string]string{"payment_id": paymentID}
			}
		case stepCreateShipment:
			var tracking string
			tracking, callErr = c.shipping.Create(ctx, inst.OrderID(), inst.ShippingAddress(), idemKey)
			if callErr == nil {
				fields = map[string]string{"tracking_number": tracking}
			}
		default:
			callErr = fmt.Errorf("unknown step %q", step)
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(fields); err == nil {
		if err := c.idempotency.Put(ctx, idemKey, string(encoded)); err != nil {
			c.log.Error("cache result for %s: %v", idemKey, err)
		}
	}
	return fields, nil
}

// compensate runs every pending compensation in reverse-completion order.
// A compensation that cannot complete within a short inline attempt is
// handed off to the compensation.Worker and the saga stays in Compensating
// until RetryCompensation finishes it.
func (c *Coordinator) compensate(ctx context.Context, sagaAggID, orderAggID id.AggregateID) {
	inst, _, err := c.sagaHandler.Load(ctx, sagaAggID)
	if err != nil {
		c.log.Error("compensate: load saga %s: %v", sagaAggID, err)
		return
	}

	allDone := true
	for _, step := range inst.PendingCompensations() {
		done, permanent := c.compensateStep(ctx, sagaAggID, step)
		if permanent {
			return
		}
		if done {
			continue
		}
		allDone = false
		if err := c.pending.Enqueue(ctx, compensation.Pending{SagaID: sagaAggID.String(), Step: step}); err != nil {
			c.log.Error("enqueue compensation %s/%s: %v", sagaAggID, step, err)
		}
	}

	if !allDone {
		return
	}

	if _, _, _, err := c.sagaHandler.Execute(ctx, sagaAggID, func(s *saga.Instance) ([]aggregate.DomainEvent, error) {
		return s.Compensated()
	}); err != nil {
		c.log.Error("compensated: %v", err)
		return
	}
	c.finishCancelled(ctx, sagaAggID, orderAggID)
}

// compensateStep attempts one compensation inline. It reports (done,
// permanentlyFailed): done is whether the step's compensation completed;
// permanentlyFailed means the collaborator rejected the compensation
// outright (not merely transient) and the saga has been moved to Failed
// for operator attention, per spec.md §4.F's "SagaFailed ... compensation
// itself could not complete" — compensations are contracted to eventually
// succeed, so this path is not expected to be exercised in practice.
func (c *Coordinator) compensateStep(ctx context.Context, sagaAggID id.AggregateID, step string) (done, permanentlyFailed bool) {
	inst, _, err := c.sagaHandler.Load(ctx, sagaAggID)
	if err != nil {
		c.log.Error("compensate step: load: %v", err)
		return false, false
	}
	if contains(inst.CompensatedSteps(), step) {
		return true, false
	}

	if inst.CurrentStep() != step || inst.Phase() != saga.PhaseCompensating {
		if _, _, _, err := c.sagaHandler.Execute(ctx, sagaAggID, func(s *saga.Instance) ([]aggregate.DomainEvent, error) {
			return s.BeginCompensation(step)
		}); err != nil {
			c.log.Error("begin compensation %s: %v", step, err)
			return false, false
		}
	}

	sagaID := sagaAggID.String()
	idemKey := fmt.Sprintf("%s:compensate:%s", sagaID, step)

	// A couple of quick inline attempts before handing off to the
	// compensation.Worker, which supplies the unbounded retry
	// CompensationBudget documents (spec.md §4.F: "retry indefinitely with
	// backoff").
	inlineBudget := CompensationBudget()
	inlineBudget.MaxAttempts = 2
	err = inlineBudget.run(ctx, external.IsTransient, func() error {
		return c.invokeCompensation(ctx, inst, step, idemKey)
	})
	if err == nil {
		if _, _, _, err := c.sagaHandler.Execute(ctx, sagaAggID, func(s *saga.Instance) ([]aggregate.DomainEvent, error) {
			return s.CompleteCompensation(step)
		}); err != nil {
			c.log.Error("complete compensation %s: %v", step, err)
			return false, false
		}
		return true, false
	}

	if external.IsTransient(err) {
		c.log.Error("compensation %s/%s not yet complete: %v", sagaID, step, err)
		return false, false
	}

	c.log.Error("compensation %s/%s failed permanently, operator attention required: %v", sagaID, step, err)
	if _, _, _, failErr := c.sagaHandler.Execute(ctx, sagaAggID, func(s *saga.Instance) ([]aggregate.DomainEvent, error) {
		return s.Fail(err.Error())
	}); failErr != nil {
		c.log.Error("fail saga %s: %v", sagaID, failErr)
	}
	return false, true
}

func (c *Coordinator) invokeCompensation(ctx context.Context, inst *saga.Instance, step, idemKey string) error {
	switch step {
	case stepReserveInventory:
		return c.inventory.Release(ctx, inst.ReservationID(), idemKey)
	case stepProcessPayment:
		return c.payment.Refund(ctx, inst.PaymentID(), idemKey)
	default:
		return fmt.Errorf("step %q has no compensation", step)
	}
}

// RetryCompensation is the compensation.Worker's retry callback: it
// re-attempts one pending compensation and, if the saga has no further
// pending compensations afterward, finalizes it.
func (c *Coordinator) RetryCompensation(ctx context.Context, sagaID, step string) error {
	sagaAggID, err := id.ParseAggregateID(sagaID)
	if err != nil {
		return fmt.Errorf("saga: retry compensation: parse saga id: %w", err)
	}

	inst, _, err := c.sagaHandler.Load(ctx, sagaAggID)
	if err != nil {
		return fmt.Errorf("saga: retry compensation: load: %w", err)
	}

	idemKey := fmt.Sprintf("%s:compensate:%s", sagaID, step)
	if err := c.invokeCompensation(ctx, inst, step, idemKey); err != nil {
		return err
	}

	if _, _, _, err := c.sagaHandler.Execute(ctx, sagaAggID, func(s *saga.Instance) ([]aggregate.DomainEvent, error) {
		return s.CompleteCompensation(step)
	}); err != nil {
		return fmt.Errorf("saga: retry compensation: complete: %w", err)
	}

	inst, _, err = c.sagaHandler.Load(ctx, sagaAggID)
	if err != nil {
		return fmt.Errorf("saga: retry compensation: reload: %w", err)
	}
	if len(inst.PendingCompensations()) > 0 {
		return nil
	}

	if _, _, _, err := c.sagaHandler.Execute(ctx, sagaAggID, func(s *saga.Instance) ([]aggregate.DomainEvent, error) {
		return s.Compensated()
	}); err != nil {
		return fmt.Errorf("saga: retry compensation: compensated: %w", err)
	}

	orderAggID, err := id.ParseAggregateID(inst.OrderID())
	if err != nil {
		return fmt.Errorf("saga: retry compensation: parse order id: %w", err)
	}
	c.finishCancelled(ctx, sagaAggID, orderAggID)
	return nil
}

// complete handles a saga that finished all three steps: it marks the
// saga Completed and confirms/completes the Order aggregate.
func (c *Coordinator) complete(ctx context.Context, sagaAggID, orderAggID id.AggregateID) {
	inst, _, _, err := c.sagaHandler.Execute(ctx, sagaAggID, func(s *saga.Instance) ([]aggregate.DomainEvent, error) {
		return s.Complete()
	})
	if err != nil {
		c.log.Error("complete saga %s: %v", sagaAggID, err)
		return
	}

	if _, _, _, err := c.orderHandler.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.ConfirmPayment(inst.PaymentID())
	}); err != nil {
		c.log.Error("confirm payment on order %s: %v", orderAggID, err)
		return
	}
	if _, _, _, err := c.orderHandler.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.CompleteOrder(inst.TrackingNumber())
	}); err != nil {
		c.log.Error("complete order %s: %v", orderAggID, err)
	}
}

// finishCancelled handles a saga that rolled back cleanly: it cancels the
// Order aggregate with the saga's recorded failure reason.
func (c *Coordinator) finishCancelled(ctx context.Context, sagaAggID, orderAggID id.AggregateID) {
	inst, _, err := c.sagaHandler.Load(ctx, sagaAggID)
	if err != nil {
		c.log.Error("finish cancelled: load saga %s: %v", sagaAggID, err)
		return
	}

	reason := inst.FailureReason()
	if reason == "" {
		reason = "order fulfillment failed"
	}

	if _, _, _, err := c.orderHandler.Execute(ctx, orderAggID, func(o *order.Order) ([]aggregate.DomainEvent, error) {
		return o.CancelOrder(reason)
	}); err != nil {
		c.log.Error("cancel order %s: %v", orderAggID, err)
	}
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
