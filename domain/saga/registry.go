package saga

import (
	"orderflow/aggregate"
	"orderflow/eventstore"
)

// NewRegistry returns the event-type decoder registry for the SagaInstance
// aggregate, for use by an aggregate.CommandHandler[*Instance].
func NewRegistry() aggregate.Registry {
	r := aggregate.Registry{}
	aggregate.RegisterJSON[SagaStarted](r, "SagaStarted")
	aggregate.RegisterJSON[StepStarted](r, "StepStarted")
	aggregate.RegisterJSON[StepCompleted](r, "StepCompleted")
	aggregate.RegisterJSON[StepFailed](r, "StepFailed")
	aggregate.RegisterJSON[CompensationStarted](r, "CompensationStarted")
	aggregate.RegisterJSON[CompensationCompleted](r, "CompensationCompleted")
	aggregate.RegisterJSON[SagaCompleted](r, "SagaCompleted")
	aggregate.RegisterJSON[SagaCompensated](r, "SagaCompensated")
	aggregate.RegisterJSON[SagaFailed](r, "SagaFailed")
	return r
}

// NewHandler builds the CommandHandler for the SagaInstance aggregate. Saga
// instances are short-lived enough that snapshotting is not wired (nil
// fromSnapshot degrades LoadWithSnapshot to a full Load).
func NewHandler(store eventstore.Store) *aggregate.CommandHandler[*Instance] {
	return aggregate.NewCommandHandler[*Instance](store, "saga_instance", NewRegistry(), New, nil)
}
