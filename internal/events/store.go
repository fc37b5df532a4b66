package events

import (
	"context"

	"github.com/google/uuid"

	"github.com/kiranahub/backend-pos/internal/db"
)

// PGStore persists events to the domain_events table.
type PGStore struct {
	Conn db.Conn
}

const insertEventSQL = `
INSERT INTO domain_events (topic, aggregate_id, payload)
VALUES ($1, $2, $3)
RETURNING id, topic, aggregate_id, payload, occurred_at`

func (s *PGStore) InsertEvent(ctx context.Context, topic string, aggregateID uuid.UUID, payload []byte) (Event, error) {
	var ev Event
	err := s.Conn.QueryRow(ctx, insertEventSQL, topic, aggregateID, payload).
		Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	return ev, err
}
