package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Capitan-Parrot/zone-notifier/internal/kafka"
)

// Downloader fetches snapshot objects
type Downloader interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}

// Run processes file paths with a fixed number of workers until paths is
// closed or ctx is cancelled. done is called for every path taken, whatever
// the outcome.
func (p *Processor) Run(ctx context.Context, paths <-chan string, workers int, done func(path string)) {
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case path, ok := <-paths:
					if !ok {
						return
					}
					if _, err := p.Process(ctx, path); err != nil {
						p.log.Error("image_failed", zap.String("path", path), zap.Error(err))
					}
					if done != nil {
						done(path)
					}
				}
			}
		}()
	}

	p.log.Info("workers_started", zap.Int("workers", workers))
	wg.Wait()
	p.log.Info("workers_stopped")
}

// ListenSnapshots processes snapshot references from Kafka. A message is
// acknowledged only after its snapshot was handled; unreadable snapshots are
// acknowledged too since retrying cannot fix them.
func (p *Processor) ListenSnapshots(ctx context.Context, messages <-chan kafka.Message, store Downloader) {
	p.log.Info("listening_for_snapshots")
	for {
		select {
		case <-ctx.Done():
			p.log.Info("snapshot_listener_stopped")
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if p.handleSnapshot(ctx, msg.Value, store) {
				// Подтверждаем сообщение только после успешной обработки
				msg.Ack()
			}
		}
	}
}

func (p *Processor) handleSnapshot(ctx context.Context, value []byte, store Downloader) bool {
	ref, err := kafka.DecodeSnapshotRef(value)
	if err != nil {
		// Не подтверждаем сообщение при ошибке парсинга
		p.log.Error("invalid_snapshot_message", zap.Error(err))
		return false
	}

	data, err := store.Download(ctx, ref.Bucket, ref.Key)
	if err != nil {
		p.metrics.ObserveError("download")
		p.log.Error("snapshot_download_failed", zap.String("key", ref.Key), zap.Error(err))
		return false
	}

	if _, err := p.ProcessSnapshot(ctx, ref, data); err != nil {
		p.log.Error("snapshot_failed", zap.String("key", ref.Key), zap.Error(err))
		return errors.Is(err, ErrUnreadableImage)
	}
	return true
}
