package aggregate_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/aggregate"
	"orderflow/eventstore"
	"orderflow/internal/id"
)

// counter is a minimal Aggregate used only to exercise the generic
// CommandHandler, independent of the Order domain.
type counter struct {
	value int
	vers  int
}

type counterIncremented struct {
	By int `json:"by"`
}

func (counterIncremented) EventType() string { return "CounterIncremented" }

func (c *counter) AggregateType() string { return "counter" }
func (c *counter) Version() int          { return c.vers }

func (c *counter) Apply(event aggregate.DomainEvent) {
	switch e := event.(type) {
	case counterIncremented:
		c.value += e.By
	}
	c.vers++
}

func (c *counter) increment(by int) ([]aggregate.DomainEvent, error) {
	return []aggregate.DomainEvent{counterIncremented{By: by}}, nil
}

func newCounterHandler(store eventstore.Store) *aggregate.CommandHandler[*counter] {
	reg := aggregate.Registry{}
	aggregate.RegisterJSON[counterIncremented](reg, "CounterIncremented")
	return aggregate.NewCommandHandler(store, "counter", reg, func() *counter { return &counter{} }, nil)
}

func incrementBy(by int) func(*counter) ([]aggregate.DomainEvent, error) {
	return func(c *counter) ([]aggregate.DomainEvent, error) { return c.increment(by) }
}

func TestCommandHandler_ExecuteAppendsAndFolds(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := newCounterHandler(store)
	aggID := id.NewAggregateID()

	agg, envelopes, version, err := handler.Execute(ctx, aggID, incrementBy(5))
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
	assert.Equal(t, 1, version)
	assert.Equal(t, 5, agg.value)
	assert.Equal(t, 1, agg.vers)

	agg, envelopes, version, err = handler.Execute(ctx, aggID, incrementBy(3))
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
	assert.Equal(t, 2, version)
	assert.Equal(t, 8, agg.value)

	reloaded, reloadedVersion, err := handler.Load(ctx, aggID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloadedVersion)
	assert.Equal(t, 8, reloaded.value)
}

func TestCommandHandler_ExecuteSurfacesConcurrencyConflict(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := newCounterHandler(store)
	aggID := id.NewAggregateID()

	// Two actors race to be the first event on the same aggregate; exactly
	// one Execute must succeed and the other must see ConcurrencyConflict
	// (spec.md §8: "for any parallel pair of append(_, Exact(v)) calls with
	// the same v, exactly one succeeds"). Both actors finish loading version
	// 0 before either appends, so both append with the same precondition.
	results := make(chan error, 2)
	start := make(chan struct{})
	var loaded sync.WaitGroup
	loaded.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			_, _, _, err := handler.Execute(ctx, aggID, func(c *counter) ([]aggregate.DomainEvent, error) {
				loaded.Done()
				loaded.Wait()
				return c.increment(1)
			})
			results <- err
		}()
	}
	close(start)

	var successes, conflicts int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			successes++
		default:
			var conflict *eventstore.ConcurrencyError
			require.ErrorAs(t, err, &conflict)
			conflicts++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
}

func TestCommandHandler_RetryOnConflictGivesUpOnNonConflictError(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := newCounterHandler(store)
	aggID := id.NewAggregateID()

	boom := assert.AnError
	_, _, _, err := handler.RetryOnConflict(ctx, aggID, 3, func(*counter) ([]aggregate.DomainEvent, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestCommandHandler_Exists(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	handler := newCounterHandler(store)
	aggID := id.NewAggregateID()

	ok, err := handler.Exists(ctx, aggID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, _, err = handler.Execute(ctx, aggID, incrementBy(1))
	require.NoError(t, err)

	ok, err = handler.Exists(ctx, aggID)
	require.NoError(t, err)
	assert.True(t, ok)
}
