package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"orderflow/internal/id"
)

// schema is applied on every PostgresStore construction (spec.md §6:
// "on start, run migrations"). CREATE TABLE/INDEX IF NOT EXISTS makes it
// idempotent across restarts, in the teacher's "retry a few times, then
// fail fast" startup style (cmd/server wires the retry loop).
const schema = `
CREATE TABLE IF NOT EXISTS events (
	id             TEXT PRIMARY KEY,
	event_type     TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	version        INTEGER NOT NULL,
	timestamp      TIMESTAMPTZ NOT NULL,
	payload        JSONB NOT NULL,
	metadata       JSONB NOT NULL,
	UNIQUE (aggregate_id, version)
);
CREATE INDEX IF NOT EXISTS events_aggregate_id_idx ON events (aggregate_id);
CREATE INDEX IF NOT EXISTS events_event_type_idx ON events (event_type);
CREATE INDEX IF NOT EXISTS events_timestamp_idx ON events (timestamp);

CREATE TABLE IF NOT EXISTS snapshots (
	aggregate_id   TEXT PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	version        INTEGER NOT NULL,
	timestamp      TIMESTAMPTZ NOT NULL,
	state          JSONB NOT NULL
);
`

// PostgresStore is the persistent Store backend of spec.md §4.B: a table
// keyed (aggregate_id, version) with a unique constraint as the concurrency
// mechanism, plus an upsertable snapshots table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a PostgresStore against db and runs migrations.
// db's connection pool (SetMaxOpenConns) is the caller's responsibility —
// cmd/server wires it from config.Config.MaxConnections.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, &BackendError{Op: "migrate", Err: err}
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Append(ctx context.Context, events []Envelope, expected ExpectedVersion) (int, error) {
	if len(events) == 0 {
		return 0, &InvalidBatchError{Reason: "batch must contain at least one event"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &BackendError{Op: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	aggregateIDStr := events[0].AggregateID.String()

	// Serialize concurrent appends to the same aggregate for the lifetime of
	// this transaction; the unique constraint below is the backstop.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, aggregateIDStr); err != nil {
		return 0, &BackendError{Op: "advisory_lock", Err: err}
	}

	var current int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1`,
		aggregateIDStr,
	).Scan(&current); err != nil {
		return 0, &BackendError{Op: "select_max_version", Err: err}
	}

	if err := expected.check(current); err != nil {
		return 0, err
	}

	_, aggregateType, err := validateBatch(events, current)
	if err != nil {
		return 0, err
	}

	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return 0, &BackendError{Op: "marshal_payload", Err: err}
		}
		metadata, err := json.Marshal(e.Metadata)
		if err != nil {
			return 0, &BackendError{Op: "marshal_metadata", Err: err}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (id, event_type, aggregate_id, aggregate_type, version, timestamp, payload, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			e.EventID.String(), e.EventType, aggregateIDStr, aggregateType, e.Version, e.Timestamp, payload, metadata,
		); err != nil {
			if isUniqueViolation(err) {
				return 0, &ConcurrencyError{Expected: expected.exact, Actual: current}
			}
			return 0, &BackendError{Op: "insert_event", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &BackendError{Op: "commit", Err: err}
	}

	return events[len(events)-1].Version, nil
}

func (s *PostgresStore) GetEventsForAggregate(ctx context.Context, aggregateID id.AggregateID) ([]Envelope, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_type, aggregate_id, aggregate_type, version, timestamp, payload, metadata
		 FROM events WHERE aggregate_id = $1 ORDER BY version ASC`,
		aggregateID.String(),
	)
	if err != nil {
		return nil, &BackendError{Op: "query_for_aggregate", Err: err}
	}
	defer rows.Close()
	return scanEnvelopes(rows)
}

func (s *PostgresStore) GetEventsByType(ctx context.Context, eventType string) ([]Envelope, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_type, aggregate_id, aggregate_type, version, timestamp, payload, metadata
		 FROM events WHERE event_type = $1 ORDER BY timestamp ASC`,
		eventType,
	)
	if err != nil {
		return nil, &BackendError{Op: "query_by_type", Err: err}
	}
	defer rows.Close()
	return scanEnvelopes(rows)
}

func (s *PostgresStore) GetEventsInRange(ctx context.Context, aggregateID id.AggregateID, fromVersion, toVersion int) ([]Envelope, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_type, aggregate_id, aggregate_type, version, timestamp, payload, metadata
		 FROM events WHERE aggregate_id = $1 AND version BETWEEN $2 AND $3 ORDER BY version ASC`,
		aggregateID.String(), fromVersion, toVersion,
	)
	if err != nil {
		return nil, &BackendError{Op: "query_in_range", Err: err}
	}
	defer rows.Close()
	return scanEnvelopes(rows)
}

func (s *PostgresStore) StreamAll(ctx context.Context, handle func(Envelope) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_type, aggregate_id, aggregate_type, version, timestamp, payload, metadata
		 FROM events ORDER BY timestamp ASC, aggregate_id ASC, version ASC`,
	)
	if err != nil {
		return &BackendError{Op: "stream_all", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, err := scanEnvelope(rows)
		if err != nil {
			return err
		}
		if err := handle(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snapshot Snapshot) error {
	state, err := json.Marshal(snapshot.State)
	if err != nil {
		return &BackendError{Op: "marshal_snapshot", Err: err}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (aggregate_id, aggregate_type, version, timestamp, state)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (aggregate_id) DO UPDATE
		 SET aggregate_type = EXCLUDED.aggregate_type,
		     version = EXCLUDED.version,
		     timestamp = EXCLUDED.timestamp,
		     state = EXCLUDED.state`,
		snapshot.AggregateID.String(), snapshot.AggregateType, snapshot.Version, snapshot.Timestamp, state,
	)
	if err != nil {
		return &BackendError{Op: "save_snapshot", Err: err}
	}
	return nil
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, aggregateID id.AggregateID) (Snapshot, bool, error) {
	var (
		aggregateType string
		version       int
		timestamp     time.Time
		state         []byte
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT aggregate_type, version, timestamp, state FROM snapshots WHERE aggregate_id = $1`,
		aggregateID.String(),
	).Scan(&aggregateType, &version, &timestamp, &state)

	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, &BackendError{Op: "get_snapshot", Err: err}
	}

	var doc Document
	if err := json.Unmarshal(state, &doc); err != nil {
		return Snapshot{}, false, &BackendError{Op: "unmarshal_snapshot", Err: err}
	}

	return Snapshot{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       version,
		Timestamp:     timestamp,
		State:         doc,
	}, true, nil
}

// rowScanner is satisfied by both *sql.Rows and the subset this file needs.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnvelopes(rows *sql.Rows) ([]Envelope, error) {
	var out []Envelope
	for rows.Next() {
		e, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &BackendError{Op: "scan_rows", Err: err}
	}
	return out, nil
}

func scanEnvelope(r rowScanner) (Envelope, error) {
	var (
		eventIDStr     string
		eventType      string
		aggregateIDStr string
		aggregateType  string
		version        int
		timestamp      time.Time
		payload        []byte
		metadata       []byte
	)

	if err := r.Scan(&eventIDStr, &eventType, &aggregateIDStr, &aggregateType, &version, &timestamp, &payload, &metadata); err != nil {
		return Envelope{}, &BackendError{Op: "scan_event", Err: err}
	}

	eventID, err := id.ParseEventID(eventIDStr)
	if err != nil {
		return Envelope{}, &BackendError{Op: "parse_event_id", Err: err}
	}
	aggregateID, err := id.ParseAggregateID(aggregateIDStr)
	if err != nil {
		return Envelope{}, &BackendError{Op: "parse_aggregate_id", Err: err}
	}

	var payloadDoc, metadataDoc Document
	if err := json.Unmarshal(payload, &payloadDoc); err != nil {
		return Envelope{}, &BackendError{Op: "unmarshal_payload", Err: err}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &metadataDoc); err != nil {
			return Envelope{}, &BackendError{Op: "unmarshal_metadata", Err: err}
		}
	}

	return Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       version,
		Timestamp:     timestamp,
		Payload:       payloadDoc,
		Metadata:      metadataDoc,
	}, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), the mechanism spec.md §4.B relies on to serialize
// concurrent appends to the same aggregate.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
