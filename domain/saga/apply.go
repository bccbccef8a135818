package saga

import "orderflow/aggregate"

// Apply advances phase/context fields deterministically from a single
// event (spec.md §4.D's determinism rule applies equally to SagaInstance).
func (s *Instance) Apply(event aggregate.DomainEvent) {
	switch e := event.(type) {
	case SagaStarted:
		s.id = e.SagaID
		s.sagaType = e.SagaType
		s.orderID = e.OrderID
		s.items = e.Items
		s.amountCents = e.AmountCents
		s.shippingAddress = e.ShippingAddress
		s.phase = PhaseStarted
		s.startedAt = e.StartedAt
		s.updatedAt = e.StartedAt

	case StepStarted:
		s.phase = PhaseRunningStep
		s.currentStep = e.Step

	case StepCompleted:
		s.phase = PhaseStepCompleted
		s.currentStep = e.Step
		s.completedSteps = append(s.completedSteps, e.Step)
		switch e.Step {
		case "reserve_inventory":
			s.reservationID = e.ResultFields["reservation_id"]
		case "process_payment":
			s.paymentID = e.ResultFields["payment_id"]
		case "create_shipment":
			s.trackingNumber = e.ResultFields["tracking_number"]
		}

	case StepFailed:
		s.phase = PhaseCompensating
		s.currentStep = e.Step
		s.failureReason = e.Reason

	case CompensationStarted:
		s.phase = PhaseCompensating
		s.currentStep = e.Step

	case CompensationCompleted:
		s.phase = PhaseCompensating
		s.currentStep = e.Step
		s.compensatedSteps = append(s.compensatedSteps, e.Step)
		switch e.Step {
		case "reserve_inventory":
			s.reservationID = ""
		case "process_payment":
			s.paymentID = ""
		}

	case SagaCompleted:
		s.phase = PhaseCompleted

	case SagaCompensated:
		s.phase = PhaseCompensated

	case SagaFailed:
		s.phase = PhaseFailed
		s.failureReason = e.Reason
	}

	s.version++
}
