package eventstore_test

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"orderflow/eventstore"
	"orderflow/internal/id"
)

// openTestPostgres opens (and migrates) a PostgresStore against
// TEST_DATABASE_URL, skipping the test when that variable is unset. These
// tests never run in this exercise but are written to the same contract as
// the memory store's compliance tests in memory_test.go.
func openTestPostgres(t *testing.T) (*eventstore.PostgresStore, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping postgres eventstore tests")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)

	store, err := eventstore.NewPostgresStore(context.Background(), db)
	require.NoError(t, err)

	_, err = db.Exec(`TRUNCATE events, snapshots`)
	require.NoError(t, err)

	return store, func() { _ = db.Close() }
}

func TestPostgresStore_AppendAndLoad(t *testing.T) {
	store, cleanup := openTestPostgres(t)
	defer cleanup()

	ctx := context.Background()
	aggID := id.NewAggregateID()

	env := newOrderEnvelope(t, aggID, 1)
	v, err := store.Append(ctx, []eventstore.Envelope{env}, eventstore.New())
	require.NoError(t, err)
	require.Equal(t, 1, v)

	events, err := store.GetEventsForAggregate(ctx, aggID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, env.EventType, events[0].EventType)
}

func TestPostgresStore_AppendRejectsVersionConflict(t *testing.T) {
	store, cleanup := openTestPostgres(t)
	defer cleanup()

	ctx := context.Background()
	aggID := id.NewAggregateID()

	_, err := store.Append(ctx, []eventstore.Envelope{newOrderEnvelope(t, aggID, 1)}, eventstore.New())
	require.NoError(t, err)

	_, err = store.Append(ctx, []eventstore.Envelope{newOrderEnvelope(t, aggID, 2)}, eventstore.New())
	require.Error(t, err)

	var conflict *eventstore.ConcurrencyError
	require.ErrorAs(t, err, &conflict)
}

func TestPostgresStore_SnapshotRoundTrip(t *testing.T) {
	store, cleanup := openTestPostgres(t)
	defer cleanup()

	ctx := context.Background()
	aggID := id.NewAggregateID()

	snap := eventstore.Snapshot{
		AggregateID:   aggID,
		AggregateType: "order",
		Version:       2,
		State:         eventstore.Document{"status": "reserved"},
	}
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	loaded, found, err := store.GetSnapshot(ctx, aggID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "reserved", loaded.State["status"])
}
