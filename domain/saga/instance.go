// Package saga implements the SagaInstance aggregate of spec.md §3/§4.F: the
// OrderFulfillmentSaga's own durable state, event-sourced through the same
// store as Order so a crash can resume it by replay alone (spec.md §9:
// "the saga is itself event-sourced. No separate state table").
package saga

import "time"

// Phase is one of the saga's coarse-grained states. RunningStep,
// StepCompleted, and Compensating each carry a step name via CurrentStep.
type Phase string

const (
	PhaseStarted       Phase = "started"
	PhaseRunningStep   Phase = "running_step"
	PhaseStepCompleted Phase = "step_completed"
	PhaseCompensating  Phase = "compensating"
	PhaseCompleted     Phase = "completed"
	PhaseCompensated   Phase = "compensated"
	PhaseFailed        Phase = "failed"
)

// ReservationItem is the subset of an order line the InventoryService needs.
type ReservationItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Instance is the SagaInstance aggregate root.
type Instance struct {
	id               string
	sagaType         string
	orderID          string
	phase            Phase
	currentStep      string
	completedSteps   []string
	compensatedSteps []string
	items            []ReservationItem
	amountCents      int
	shippingAddress  string
	reservationID    string
	paymentID        string
	trackingNumber   string
	failureReason    string
	version          int
	startedAt        time.Time
	updatedAt        time.Time
}

// New returns a fresh, not-yet-started Instance.
func New() *Instance { return &Instance{} }

func (s *Instance) AggregateType() string { return "saga_instance" }
func (s *Instance) Version() int          { return s.version }

func (s *Instance) ID() string              { return s.id }
func (s *Instance) SagaType() string        { return s.sagaType }
func (s *Instance) OrderID() string         { return s.orderID }
func (s *Instance) Phase() Phase            { return s.phase }
func (s *Instance) CurrentStep() string     { return s.currentStep }
func (s *Instance) ReservationID() string   { return s.reservationID }
func (s *Instance) PaymentID() string       { return s.paymentID }
func (s *Instance) TrackingNumber() string  { return s.trackingNumber }
func (s *Instance) FailureReason() string   { return s.failureReason }
func (s *Instance) AmountCents() int        { return s.amountCents }
func (s *Instance) ShippingAddress() string { return s.shippingAddress }

// CompletedSteps returns a defensive copy of the ordered list of steps that
// have completed successfully.
func (s *Instance) CompletedSteps() []string {
	out := make([]string, len(s.completedSteps))
	copy(out, s.completedSteps)
	return out
}

// CompensatedSteps returns a defensive copy of the steps whose compensation
// has completed so far.
func (s *Instance) CompensatedSteps() []string {
	out := make([]string, len(s.compensatedSteps))
	copy(out, s.compensatedSteps)
	return out
}

// Items returns a defensive copy of the reservation items captured at start.
func (s *Instance) Items() []ReservationItem {
	out := make([]ReservationItem, len(s.items))
	copy(out, s.items)
	return out
}

// PendingCompensations returns the steps still needing compensation, in the
// reverse order they completed (spec.md §4.F: "compensation runs
// already-completed steps in reverse order"). It is computed from
// completed/compensated steps rather than stored, per spec.md §9's "data
// structurally" guidance.
func (s *Instance) PendingCompensations() []string {
	compensated := make(map[string]bool, len(s.compensatedSteps))
	for _, step := range s.compensatedSteps {
		compensated[step] = true
	}
	var pending []string
	for i := len(s.completedSteps) - 1; i >= 0; i-- {
		step := s.completedSteps[i]
		if !compensated[step] {
			pending = append(pending, step)
		}
	}
	return pending
}

func (s *Instance) started() bool { return s.version > 0 }
