package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Capitan-Parrot/zone-notifier/internal/api"
	"github.com/Capitan-Parrot/zone-notifier/internal/config"
	"github.com/Capitan-Parrot/zone-notifier/internal/database"
	"github.com/Capitan-Parrot/zone-notifier/internal/kafka"
	"github.com/Capitan-Parrot/zone-notifier/internal/logger"
	"github.com/Capitan-Parrot/zone-notifier/internal/metrics"
	"github.com/Capitan-Parrot/zone-notifier/internal/models"
	"github.com/Capitan-Parrot/zone-notifier/internal/mqtt"
	"github.com/Capitan-Parrot/zone-notifier/internal/outbox"
	"github.com/Capitan-Parrot/zone-notifier/internal/pipeline"
	"github.com/Capitan-Parrot/zone-notifier/internal/s3"
	"github.com/Capitan-Parrot/zone-notifier/internal/services/detection"
	"github.com/Capitan-Parrot/zone-notifier/internal/watcher"
)

const outboxInterval = 5 * time.Second

func main() {
	// Чтение конфига
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal(err)
	}

	lg, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	publisher := mqtt.NewPublisher(cfg, lg)
	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	err = publisher.Connect(connectCtx)
	connectCancel()
	if err != nil {
		lg.Fatal("mqtt_connect_failed", zap.Error(err))
	}
	defer publisher.Close()

	opts := []pipeline.Option{pipeline.WithMetrics(m)}

	// История событий и аутбокс (опционально)
	var events api.EventLister
	if cfg.Postgres.DSN != "" {
		db, err := database.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			lg.Fatal("database_connect_failed", zap.Error(err))
		}
		defer db.Close()
		if err := db.Init(ctx); err != nil {
			lg.Fatal("database_init_failed", zap.Error(err))
		}

		dispatcher := outbox.NewDispatcher(db, publisher, outboxInterval, lg)
		dispatcher.OnPublished(func(n models.Notification) { m.ObserveNotification(n) })
		go dispatcher.Run(ctx)

		opts = append(opts, pipeline.WithStore(db))
		events = db
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.EventTopic != "" {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventTopic)
		if err != nil {
			lg.Fatal("kafka_producer_failed", zap.Error(err))
		}
		defer producer.Close()
		opts = append(opts, pipeline.WithEventSink(producer))
	}

	var minioClient *s3.Client
	if cfg.Minio.Endpoint != "" {
		minioClient, err = s3.NewMinioClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Secure)
		if err != nil {
			lg.Fatal("minio_connect_failed", zap.Error(err))
		}
		if cfg.Minio.ArchiveBucket != "" {
			if err := minioClient.EnsureBucket(ctx, cfg.Minio.ArchiveBucket); err != nil {
				lg.Fatal("minio_bucket_failed", zap.Error(err))
			}
			opts = append(opts, pipeline.WithArchive(minioClient, cfg.Minio.ArchiveBucket))
		}
	}

	detectClient := detection.NewClient(cfg.Detection.Endpoint, cfg.Detection.Timeout, lg)

	processor, err := pipeline.NewProcessor(cfg, detectClient, publisher, lg, opts...)
	if err != nil {
		lg.Fatal("pipeline_init_failed", zap.Error(err))
	}

	// Снапшоты из Kafka, если настроены
	if minioClient != nil && len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.SnapshotTopic != "" {
		consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.SnapshotTopic, lg)
		if err != nil {
			lg.Fatal("kafka_consumer_failed", zap.Error(err))
		}
		defer consumer.Close()
		consumer.StartListening(ctx)
		go processor.ListenSnapshots(ctx, consumer.Messages(), minioClient)
	}

	w := watcher.New(cfg.Directories.Input, cfg.Processing.Extensions, lg)
	paths := make(chan string, cfg.Processing.Workers*4)
	go func() {
		if err := w.Run(ctx, paths); err != nil && !errors.Is(err, context.Canceled) {
			lg.Error("watcher_stopped", zap.Error(err))
			cancel()
		}
	}()

	workersDone := make(chan struct{})
	go func() {
		processor.Run(ctx, paths, cfg.Processing.Workers, w.Release)
		close(workersDone)
	}()

	// Настройка роутера
	handlers := api.NewHandlers(cfg, events, m.Handler(), lg)
	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: handlers.Router()}
	if cfg.HTTP.Addr != "" {
		go func() {
			lg.Info("http_server_started", zap.String("addr", cfg.HTTP.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("http_server_failed", zap.Error(err))
			}
		}()
	}

	lg.Info("notifier_started",
		zap.String("input", cfg.Directories.Input),
		zap.String("output", cfg.Directories.Output),
		zap.Int("cameras", len(cfg.Cameras)),
	)

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
	case <-ctx.Done():
	}
	lg.Info("shutting_down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	<-workersDone
}
