// Package projection maintains an ordered fan-out from the event store to a
// registered set of read models (spec.md §4.E). Each Projection owns its
// own state and cursor; the Processor's job is purely sequencing delivery,
// not storage.
package projection

import (
	"context"
	"fmt"
	"sync"

	"orderflow/eventstore"
)

// Projection is a single read model driven by the event stream. Handle must
// confine its effects to the projection's own state; the processor
// guarantees no concurrent Handle calls for the same projection.
type Projection interface {
	Name() string
	Handle(ctx context.Context, env eventstore.Envelope) error

	// Cursor returns an opaque marker of how far this projection has
	// processed (spec.md §4.E: "tracked ... opaque to the processor,
	// maintained by the projection itself"). The processor never inspects
	// it; it exists for callers (tests, diagnostics) to inspect progress.
	Cursor() int

	// Reset discards all accumulated state, preparing the projection for a
	// full replay (used by Processor.Rebuild).
	Reset()
}

// Processor drives a fixed set of Projections from a Store, per spec.md
// §4.E's catch-up/deliver-one/rebuild operations. Projections are invoked
// in registration order and never concurrently with themselves.
type Processor struct {
	store       eventstore.Store
	mu          sync.Mutex
	projections []Projection
}

// NewProcessor registers projections in the given order.
func NewProcessor(store eventstore.Store, projections ...Projection) *Processor {
	return &Processor{store: store, projections: projections}
}

// CatchUp streams every envelope in the store's total order and delivers it
// to all registered projections, per spec.md §4.E.
func (p *Processor) CatchUp(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.store.StreamAll(ctx, func(env eventstore.Envelope) error {
		return p.deliverLocked(ctx, env)
	})
}

// DeliverOne forwards a single freshly appended envelope to every
// registered projection, in registration order.
func (p *Processor) DeliverOne(ctx context.Context, env eventstore.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deliverLocked(ctx, env)
}

func (p *Processor) deliverLocked(ctx context.Context, env eventstore.Envelope) error {
	for _, proj := range p.projections {
		if err := proj.Handle(ctx, env); err != nil {
			return fmt.Errorf("projection %s: %w", proj.Name(), err)
		}
	}
	return nil
}

// Rebuild discards name's accumulated state and replays the full stream
// into it alone.
func (p *Processor) Rebuild(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var target Projection
	for _, proj := range p.projections {
		if proj.Name() == name {
			target = proj
			break
		}
	}
	if target == nil {
		return fmt.Errorf("projection: unknown projection %q", name)
	}

	target.Reset()
	return p.store.StreamAll(ctx, func(env eventstore.Envelope) error {
		return target.Handle(ctx, env)
	})
}
