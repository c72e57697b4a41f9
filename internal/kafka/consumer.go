package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const (
	minRetryDelay = time.Second
	maxRetryDelay = 30 * time.Second
)

// Consumer reads snapshot references from one topic of a consumer group.
// Offsets are committed only for messages that were acknowledged.
type Consumer struct {
	group    sarama.ConsumerGroup
	topic    string
	messages chan Message
	closed   chan struct{}
	log      *zap.Logger
}

// Message is a record waiting for acknowledgement
type Message struct {
	Key    []byte
	Value  []byte
	Topic  string
	Offset int64
	ack    func()
}

// Ack marks the message consumed. Call it only after the message was handled.
func (m Message) Ack() {
	if m.ack != nil {
		m.ack()
	}
}

func NewConsumer(brokers []string, groupID, topic string, log *zap.Logger) (*Consumer, error) {
	if log == nil {
		log = zap.NewNop()
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_6_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create consumer group %s: %w", groupID, err)
	}

	return &Consumer{
		group:    group,
		topic:    topic,
		messages: make(chan Message),
		closed:   make(chan struct{}),
		log:      log.Named("kafka_consumer"),
	}, nil
}

// StartListening consumes in the background until ctx is cancelled. The
// Messages channel is closed when it stops.
func (c *Consumer) StartListening(ctx context.Context) {
	go c.loop(ctx)
}

func (c *Consumer) loop(ctx context.Context) {
	defer close(c.messages)

	h := &claimHandler{out: c.messages, closed: c.closed}
	delay := minRetryDelay
	for ctx.Err() == nil {
		// Consume возвращается при каждой ребалансировке
		err := c.group.Consume(ctx, []string{c.topic}, h)
		if err == nil {
			delay = minRetryDelay
			continue
		}

		c.log.Error("consume_failed", zap.String("topic", c.topic), zap.Error(err), zap.Duration("retry_in", delay))
		select {
		case <-ctx.Done():
		case <-c.closed:
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRetryDelay)
	}
	c.log.Info("consumer_stopped", zap.String("topic", c.topic))
}

func (c *Consumer) Close() error {
	close(c.closed)
	return c.group.Close()
}

func (c *Consumer) Messages() <-chan Message {
	return c.messages
}

type claimHandler struct {
	out    chan<- Message
	closed <-chan struct{}
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	done := sess.Context().Done()
	for {
		var rec *sarama.ConsumerMessage
		select {
		case m, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			rec = m
		case <-done:
			return nil
		case <-h.closed:
			return nil
		}

		msg := Message{
			Key:    rec.Key,
			Value:  rec.Value,
			Topic:  rec.Topic,
			Offset: rec.Offset,
			ack:    func() { sess.MarkMessage(rec, "") },
		}
		select {
		case h.out <- msg:
		case <-done:
			return nil
		case <-h.closed:
			return nil
		}
	}
}
