package compensation

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS pending_compensations (
	saga_id    TEXT NOT NULL,
	step       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (saga_id, step)
);
`

// PostgresStore is a Store backed by a Postgres table, surviving process
// restarts so the Worker can resume retrying after a crash.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("compensation: migrate: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Enqueue(ctx context.Context, p Pending) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_compensations (saga_id, step) VALUES ($1, $2)
		ON CONFLICT (saga_id, step) DO NOTHING
	`, p.SagaID, p.Step)
	if err != nil {
		return fmt.Errorf("compensation: enqueue: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]Pending, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT saga_id, step FROM pending_compensations ORDER BY created_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("compensation: list pending: %w", err)
	}
	defer rows.Close()

	var out []Pending
	for rows.Next() {
		var p Pending
		if err := rows.Scan(&p.SagaID, &p.Step); err != nil {
			return nil, fmt.Errorf("compensation: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Remove(ctx context.Context, sagaID, step string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_compensations WHERE saga_id = $1 AND step = $2`, sagaID, step)
	if err != nil {
		return fmt.Errorf("compensation: remove: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
