package saga

import (
	"time"

	"orderflow/aggregate"
)

// Start begins a fresh saga instance (spec.md §4.F execution model step 1).
func (s *Instance) Start(sagaID, sagaType, orderID string, items []ReservationItem, amountCents int, shippingAddress string) ([]aggregate.DomainEvent, error) {
	if s.started() {
		return nil, &AlreadyStartedError{SagaID: sagaID}
	}
	return []aggregate.DomainEvent{
		SagaStarted{
			SagaID:          sagaID,
			SagaType:        sagaType,
			OrderID:         orderID,
			Items:           items,
			AmountCents:     amountCents,
			ShippingAddress: shippingAddress,
			StartedAt:       time.Now().UTC(),
		},
	}, nil
}

// BeginStep records that step is about to be invoked. Valid from Started or
// immediately after the previous step completed.
func (s *Instance) BeginStep(step string) ([]aggregate.DomainEvent, error) {
	switch s.phase {
	case PhaseStarted, PhaseStepCompleted:
	default:
		return nil, &InvalidPhaseTransitionError{From: s.phase, Operation: "begin step " + step}
	}
	return []aggregate.DomainEvent{StepStarted{Step: step}}, nil
}

// CompleteStep records step's successful result and advances completedSteps.
func (s *Instance) CompleteStep(step string, resultFields map[string]string) ([]aggregate.DomainEvent, error) {
	if s.phase != PhaseRunningStep {
		return nil, &InvalidPhaseTransitionError{From: s.phase, Operation: "complete step " + step}
	}
	return []aggregate.DomainEvent{StepCompleted{Step: step, ResultFields: resultFields}}, nil
}

// FailStep records step's permanent failure and enters compensation.
func (s *Instance) FailStep(step, reason string) ([]aggregate.DomainEvent, error) {
	if s.phase != PhaseRunningStep {
		return nil, &InvalidPhaseTransitionError{From: s.phase, Operation: "fail step " + step}
	}
	return []aggregate.DomainEvent{StepFailed{Step: step, Reason: reason}}, nil
}

// BeginCompensation records that step's inverse is about to be invoked.
func (s *Instance) BeginCompensation(step string) ([]aggregate.DomainEvent, error) {
	switch s.phase {
	case PhaseCompensating:
	default:
		return nil, &InvalidPhaseTransitionError{From: s.phase, Operation: "begin compensation of " + step}
	}
	return []aggregate.DomainEvent{CompensationStarted{Step: step}}, nil
}

// CompleteCompensation records step's inverse call succeeding.
func (s *Instance) CompleteCompensation(step string) ([]aggregate.DomainEvent, error) {
	if s.phase != PhaseCompensating {
		return nil, &InvalidPhaseTransitionError{From: s.phase, Operation: "complete compensation of " + step}
	}
	return []aggregate.DomainEvent{CompensationCompleted{Step: step}}, nil
}

// Complete records the saga's successful terminal state.
func (s *Instance) Complete() ([]aggregate.DomainEvent, error) {
	if s.phase != PhaseStepCompleted {
		return nil, &InvalidPhaseTransitionError{From: s.phase, Operation: "complete"}
	}
	return []aggregate.DomainEvent{SagaCompleted{CompletedAt: time.Now().UTC()}}, nil
}

// Compensated records that every completed step was rolled back cleanly.
func (s *Instance) Compensated() ([]aggregate.DomainEvent, error) {
	if s.phase != PhaseCompensating {
		return nil, &InvalidPhaseTransitionError{From: s.phase, Operation: "compensate"}
	}
	return []aggregate.DomainEvent{SagaCompensated{CompensatedAt: time.Now().UTC()}}, nil
}

// Fail records that compensation itself could not complete.
func (s *Instance) Fail(reason string) ([]aggregate.DomainEvent, error) {
	if s.phase != PhaseCompensating {
		return nil, &InvalidPhaseTransitionError{From: s.phase, Operation: "fail"}
	}
	return []aggregate.DomainEvent{SagaFailed{Reason: reason, FailedAt: time.Now().UTC()}}, nil
}
