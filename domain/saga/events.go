package saga

import "time"

// SagaStarted is emitted by Start (spec.md §4.F step 1).
type SagaStarted struct {
	SagaID          string            `json:"saga_id"`
	SagaType        string            `json:"saga_type"`
	OrderID         string            `json:"order_id"`
	Items           []ReservationItem `json:"items"`
	AmountCents     int               `json:"amount_cents"`
	ShippingAddress string            `json:"shipping_address"`
	StartedAt       time.Time         `json:"started_at"`
}

func (SagaStarted) EventType() string { return "SagaStarted" }

// StepStarted is emitted before invoking a step's external service call.
type StepStarted struct {
	Step string `json:"step"`
}

func (StepStarted) EventType() string { return "StepStarted" }

// StepCompleted is emitted after a step's external call succeeds.
// ResultFields carries the step-specific identifier returned (reservation
// id, payment id, tracking number), keyed by field name.
type StepCompleted struct {
	Step         string            `json:"step"`
	ResultFields map[string]string `json:"result_fields"`
}

func (StepCompleted) EventType() string { return "StepCompleted" }

// StepFailed is emitted when a step's external call fails permanently.
type StepFailed struct {
	Step   string `json:"step"`
	Reason string `json:"reason"`
}

func (StepFailed) EventType() string { return "StepFailed" }

// CompensationStarted is emitted before invoking a completed step's inverse.
type CompensationStarted struct {
	Step string `json:"step"`
}

func (CompensationStarted) EventType() string { return "CompensationStarted" }

// CompensationCompleted is emitted after a step's inverse call succeeds.
type CompensationCompleted struct {
	Step string `json:"step"`
}

func (CompensationCompleted) EventType() string { return "CompensationCompleted" }

// SagaCompleted is the terminal success event.
type SagaCompleted struct {
	CompletedAt time.Time `json:"completed_at"`
}

func (SagaCompleted) EventType() string { return "SagaCompleted" }

// SagaCompensated is the terminal event when every completed step was
// rolled back cleanly.
type SagaCompensated struct {
	CompensatedAt time.Time `json:"compensated_at"`
}

func (SagaCompensated) EventType() string { return "SagaCompensated" }

// SagaFailed is the terminal event when compensation itself could not
// complete and an operator must intervene.
type SagaFailed struct {
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

func (SagaFailed) EventType() string { return "SagaFailed" }
