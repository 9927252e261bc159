package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"ai-dev-platform/analytics/internal/telemetry/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a telemetry event repository backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListByTypes returns events of the given types in [from, to), ordered by occurred_at.
func (r *PostgresRepository) ListByTypes(ctx context.Context, eventTypes []string, from, to time.Time) ([]*domain.Event, error) {
	if len(eventTypes) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, payload, occurred_at
		FROM telemetry_events
		WHERE event_type = ANY($1)
		  AND occurred_at >= $2
		  AND occurred_at < $3
		ORDER BY occurred_at ASC`,
		eventTypes, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		e := &domain.Event{}
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Save persists the event. It sets e.ID on success.
func (r *PostgresRepository) Save(ctx context.Context, e *domain.Event) error {
	payload := e.Payload
	if payload == nil {
		payload = []byte("{}")
	}
	occurredAt := e.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO telemetry_events (event_type, payload, occurred_at)
		VALUES ($1, $2, $3)
		RETURNING id`,
		e.EventType, json.RawMessage(payload), occurredAt).Scan(&e.ID)
}
