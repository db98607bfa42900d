package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is applied by every service that writes outbox rows.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id           UUID PRIMARY KEY,
		aggregate_id BIGINT NOT NULL,
		event_type   TEXT NOT NULL,
		payload      JSONB NOT NULL,
		status       TEXT NOT NULL DEFAULT 'pending',
		attempts     INT NOT NULL DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		sent_at      TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_events_pending
		ON outbox_events (created_at) WHERE status = 'pending'`,
}

// Execer is satisfied by both pgxpool.Pool and pgx.Tx, so Insert can join
// the caller's transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func Insert(ctx context.Context, db Execer, evt Event) error {
	_, err := db.Exec(ctx, `
		INSERT INTO outbox_events (id, aggregate_id, event_type, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, evt.ID, evt.AggregateID, evt.EventType, []byte(evt.Payload), evt.Status, evt.Attempts, evt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	var payload []byte

	err := row.Scan(
		&e.ID,
		&e.AggregateID,
		&e.EventType,
		&payload,
		&e.Status,
		&e.Attempts,
		&e.CreatedAt,
		&e.SentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	e.Payload = payload
	return &e, nil
}

func (s *PgStore) FetchPending(ctx context.Context, limit, maxAttempts int) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, aggregate_id, event_type, payload, status, attempts, created_at, sent_at
		FROM outbox_events
		WHERE status = 'pending'
		  AND attempts < $2
		ORDER BY created_at
		LIMIT $1
	`, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("fetch pending outbox events: %w", err)
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PgStore) MarkSent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'sent',
		    sent_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// RecordFailure counts one failed publish. The row turns failed once it
// reaches maxAttempts and the relay stops picking it up.
func (s *PgStore) RecordFailure(ctx context.Context, id uuid.UUID, maxAttempts int) (Status, error) {
	var status Status
	err := s.pool.QueryRow(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE status END
		WHERE id = $1
		  AND status = 'pending'
		RETURNING status
	`, id, maxAttempts).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrEventNotFound
		}
		return "", fmt.Errorf("record outbox failure: %w", err)
	}
	return status, nil
}
