package database

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/Capitan-Parrot/zone-notifier/internal/models"
)

// SaveEvent stores a processed image together with its notifications in
// the outbox, atomically
func (d *Database) SaveEvent(ctx context.Context, ev models.Event) error {
	counters, err := json.Marshal(ev.Counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}

	return d.InTx(ctx, func(ctx context.Context) error {
		_, err := d.querier(ctx).ExecContext(ctx,
			`INSERT INTO detection_events (id, camera, filename, valid, counters, summary, processed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ev.ID,
			ev.Camera,
			ev.Filename,
			ev.Counters.IsValid(),
			counters,
			ev.Summary,
			ev.ProcessedAt,
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		for _, n := range ev.Notifications {
			if err := d.AddToOutbox(ctx, ev.ID, n); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecentEvents returns the latest events of a camera, newest first
func (d *Database) RecentEvents(ctx context.Context, camera string, limit int) ([]models.Event, error) {
	rows, err := d.querier(ctx).QueryContext(ctx, `
		SELECT id, camera, filename, counters, summary, processed_at
		FROM detection_events
		WHERE camera = $1
		ORDER BY processed_at DESC
		LIMIT $2
	`, camera, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var (
			ev       models.Event
			counters []byte
		)
		if err := rows.Scan(&ev.ID, &ev.Camera, &ev.Filename, &counters, &ev.Summary, &ev.ProcessedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(counters, &ev.Counters); err != nil {
			return nil, fmt.Errorf("decode counters of %s: %w", ev.ID, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
