package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"ledger/internal/domain/event"
)

// OutboxRepository implements event.Repository for PostgreSQL
type OutboxRepository struct {
	db *DB
}

// NewOutboxRepository creates a new PostgreSQL outbox repository
func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// ProcessPending claims pending rows with FOR UPDATE SKIP LOCKED so several
// relays can share the table, then records the delivery outcome in the
// same transaction.
func (r *OutboxRepository) ProcessPending(ctx context.Context, limit, maxAttempts int, fn event.Handler) (event.Batch, error) {
	var batch event.Batch

	err := r.db.InTx(ctx, nil, func(ctx context.Context, tx *Tx) error {
		events, err := r.claim(ctx, tx, limit)
		if err != nil {
			return err
		}
		batch.Claimed = len(events)

		var sent []string
		for _, e := range events {
			if err := fn(ctx, e); err != nil {
				batch.Failed++
				if markErr := r.markFailed(ctx, tx, e.ID, maxAttempts, err); markErr != nil {
					return markErr
				}
				break
			}
			sent = append(sent, e.ID)
		}

		if len(sent) > 0 {
			_, err := tx.ExecContext(ctx,
				`UPDATE outbox_events SET status = 'sent', sent_at = CURRENT_TIMESTAMP WHERE id = ANY($1)`,
				pq.Array(sent),
			)
			if err != nil {
				return fmt.Errorf("failed to mark outbox events as sent: %w", err)
			}
		}
		batch.Sent = len(sent)
		return nil
	})
	if err != nil {
		batch.Sent = 0
		return batch, err
	}
	return batch, nil
}

func (r *OutboxRepository) claim(ctx context.Context, tx *Tx, limit int) ([]*event.Event, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, event_key, payload, status, attempts,
		       COALESCE(last_error, ''), created_at, sent_at
		FROM outbox_events
		WHERE status = 'pending'
		ORDER BY seq
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending outbox events: %w", err)
	}
	defer rows.Close()

	var events []*event.Event
	for rows.Next() {
		var (
			e      event.Event
			sentAt sql.NullTime
		)
		err := rows.Scan(
			&e.ID, &e.AggregateType, &e.AggregateID, &e.Type, &e.Key, &e.Payload,
			&e.Status, &e.Attempts, &e.LastError, &e.CreatedAt, &sentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		if sentAt.Valid {
			e.SentAt = &sentAt.Time
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox events: %w", err)
	}
	return events, nil
}

func (r *OutboxRepository) markFailed(ctx context.Context, tx *Tx, id string, maxAttempts int, cause error) error {
	query := `
		UPDATE outbox_events
		SET attempts = attempts + 1,
		    last_error = $2,
		    status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE status END
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, query, id, cause.Error(), maxAttempts); err != nil {
		return fmt.Errorf("failed to record outbox failure: %w", err)
	}
	return nil
}

// CountByStatus reports the number of outbox rows per status
func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[event.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM outbox_events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outbox events: %w", err)
	}
	defer rows.Close()

	counts := make(map[event.Status]int)
	for rows.Next() {
		var (
			status event.Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outbox count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
