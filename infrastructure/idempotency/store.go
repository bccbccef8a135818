// Package idempotency generalizes the teacher's
// ProcessedEventsRepository (infrastructure/idempotency/processed_events.go)
// from a one-shot "seen this event id" check into a key/response cache: the
// saga coordinator calls Get before every forward-step external call keyed
// on (saga_id, step_name), and Put after a successful call, so a retried or
// crash-recovered call returns the original result instead of re-invoking
// the collaborator. Compensation calls do not go through this cache.
package idempotency

import "context"

// Store records the result of an idempotent operation, keyed by an
// opaque string the caller derives (the coordinator uses "sagaID:step").
type Store interface {
	// Get returns the previously recorded value for key, if any.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Put records value for key. Calling Put twice for the same key with
	// the same value is a no-op; a differing value is an implementation-
	// defined overwrite (callers are expected to derive one value per key).
	Put(ctx context.Context, key string, value string) error
}
