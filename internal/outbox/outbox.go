package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Capitan-Parrot/zone-notifier/internal/models"
)

const batchSize = 20

type Store interface {
	PendingOutbox(ctx context.Context, limit int) ([]models.OutboxMessage, error)
	MarkOutboxProcessed(ctx context.Context, id string) error
}

type Sender interface {
	PublishNotification(n models.Notification) error
}

// Dispatcher publishes stored notifications and marks them processed
type Dispatcher struct {
	store    Store
	sender   Sender
	interval time.Duration
	observe  func(models.Notification)
	log      *zap.Logger
}

func NewDispatcher(store Store, sender Sender, interval time.Duration, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		store:    store,
		sender:   sender,
		interval: interval,
		observe:  func(models.Notification) {},
		log:      log.Named("outbox"),
	}
}

// OnPublished registers a callback run after each successful publish
func (d *Dispatcher) OnPublished(fn func(models.Notification)) {
	d.observe = fn
}

// Run polls the outbox until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("outbox_dispatcher_stopped")
			return
		case <-ticker.C:
			d.Flush(ctx)
		}
	}
}

// Flush publishes one batch of pending messages. A message that fails to
// publish stays pending and is retried on the next tick.
func (d *Dispatcher) Flush(ctx context.Context) int {
	messages, err := d.store.PendingOutbox(ctx, batchSize)
	if err != nil {
		d.log.Error("outbox_fetch_failed", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if err := d.sender.PublishNotification(msg.Notification); err != nil {
			d.log.Warn("outbox_publish_failed", zap.String("id", msg.ID), zap.Error(err))
			continue
		}
		if err := d.store.MarkOutboxProcessed(ctx, msg.ID); err != nil {
			d.log.Error("outbox_mark_failed", zap.String("id", msg.ID), zap.Error(err))
			continue
		}
		d.observe(msg.Notification)
		sent++
	}
	return sent
}
