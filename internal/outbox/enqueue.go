package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Envelope is an event ready to be written to the outbox table in the caller's transaction.
type Envelope struct {
	AggregateType string
	AggregateID   string
	EventType     string
	PartitionKey  string
	DedupeKey     string
	Payload       any
}

// Enqueue records env inside tx so the event commits or rolls back with the
// rows it describes. A repeated dedupe key is ignored.
func Enqueue(ctx context.Context, tx pgx.Tx, env Envelope) error {
	route, ok := RouteFor(env.EventType)
	if !ok {
		return fmt.Errorf("unknown event type: %s", env.EventType)
	}
	body, err := json.Marshal(env.Payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		env.AggregateType,
		env.AggregateID,
		env.EventType,
		route.Topic,
		route.SchemaSubject,
		env.PartitionKey,
		body,
		nullIfEmpty(env.DedupeKey),
	)
	return err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
