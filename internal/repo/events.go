package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gerai-id/backend-gerai/internal/events"
)

// EventRepo appends domain events to the audit log.
type EventRepo struct {
	Pool *pgxpool.Pool
}

// Insert appends one event and returns it with its assigned id and timestamp.
func (r EventRepo) Insert(ctx context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.Event, error) {
	var ev events.Event
	var aid pgtype.UUID
	err := r.Pool.QueryRow(ctx, `
		INSERT INTO domain_events (topic, aggregate_id, payload)
		VALUES ($1, $2, $3)
		RETURNING id, topic, aggregate_id, payload, occurred_at`,
		topic, toPgUUID(aggregateID), payload).
		Scan(&ev.ID, &ev.Topic, &aid, &ev.Payload, &ev.OccurredAt)
	if err != nil {
		return events.Event{}, fmt.Errorf("insert domain event: %w", err)
	}
	ev.AggregateID = fromPgUUID(aid)
	return ev, nil
}
