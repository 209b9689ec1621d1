// Package audit persists an append-only record of every domain event for
// compliance review. The log is write-heavy and rarely read, so it lives in
// a plain relational table rather than the document store.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cascadehq/cascade/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			id          BIGSERIAL PRIMARY KEY,
			event_type  TEXT NOT NULL,
			actor_id    TEXT,
			payload     JSONB NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS audit_events_type_idx ON audit_events (event_type, occurred_at DESC);
	`)
	return err
}

func (r *Repository) Record(ctx context.Context, eventType, actorID string, payload []byte) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_events (event_type, actor_id, payload)
		VALUES ($1, NULLIF($2, ''), $3)
	`, eventType, actorID, payload)
	return err
}

type Event struct {
	ID         int64           `json:"id"`
	EventType  string          `json:"eventType"`
	ActorID    string          `json:"actorId,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt string          `json:"occurredAt"`
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, COALESCE(actor_id, ''), payload, occurred_at
		FROM audit_events
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var occurredAt time.Time
		if err := rows.Scan(&e.ID, &e.EventType, &e.ActorID, &e.Payload, &occurredAt); err != nil {
			return nil, err
		}
		e.OccurredAt = occurredAt.UTC().Format(time.RFC3339)
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
