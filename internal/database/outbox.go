package database

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Capitan-Parrot/zone-notifier/internal/models"
)

// AddToOutbox adds a notification to the transactional outbox
func (d *Database) AddToOutbox(ctx context.Context, eventID string, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	_, err = d.querier(ctx).ExecContext(ctx,
		"INSERT INTO outbox (id, event_id, payload, created_at) VALUES ($1, $2, $3, $4)",
		uuid.New().String(),
		eventID,
		payload,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}

// PendingOutbox retrieves unprocessed outbox messages, oldest first
func (d *Database) PendingOutbox(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	rows, err := d.querier(ctx).QueryContext(ctx, `
		SELECT id, event_id, payload, created_at
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.OutboxMessage
	for rows.Next() {
		var (
			m       models.OutboxMessage
			payload []byte
		)
		if err := rows.Scan(&m.ID, &m.EventID, &payload, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &m.Notification); err != nil {
			return nil, fmt.Errorf("decode outbox %s: %w", m.ID, err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkOutboxProcessed marks an outbox message as processed
func (d *Database) MarkOutboxProcessed(ctx context.Context, id string) error {
	_, err := d.querier(ctx).ExecContext(ctx,
		"UPDATE outbox SET processed_at = $1 WHERE id = $2",
		time.Now(),
		id,
	)
	return err
}
