package kafka

import (
	"fmt"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	"github.com/Capitan-Parrot/zone-notifier/internal/models"
)

type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer создаёт продюсер с настройками
func NewProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return newProducer(producer, topic), nil
}

func newProducer(p sarama.SyncProducer, topic string) *Producer {
	return &Producer{producer: p, topic: topic}
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

// SendEvent publishes one processed-image event keyed by camera
func (p *Producer) SendEvent(ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Camera),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("send event %s: %w", ev.ID, err)
	}
	return nil
}

// DecodeSnapshotRef parses a snapshot reference message
func DecodeSnapshotRef(data []byte) (models.SnapshotRef, error) {
	var ref models.SnapshotRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return ref, fmt.Errorf("invalid snapshot message: %w", err)
	}
	if ref.Bucket == "" || ref.Key == "" {
		return ref, fmt.Errorf("invalid snapshot message: bucket and key are required")
	}
	return ref, nil
}
