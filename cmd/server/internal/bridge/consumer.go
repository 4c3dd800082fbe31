package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// reconnectBackoff is the fixed delay before a dropped broker connection is
// re-established.
const reconnectBackoff = 5 * time.Second

// Reader abstracts the broker queue (kafka.Reader in production).
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReaderFactory builds a fresh Reader; called on every (re)connect so group
// membership and offsets are re-asserted from scratch.
type ReaderFactory func() Reader

// ForwardFunc delivers one decoded message to the registry. A non-nil error
// is a nack: the consumer drops its connection without committing, so the
// broker redelivers the message from the last committed offset.
type ForwardFunc func(routingKey string, payload []byte) error

// Consumer drains one durable queue and forwards every message to the
// registry. Commit happens strictly after a successful forward, which gives
// at-least-once delivery: a crash between forward and commit re-forwards the
// message on restart.
type Consumer struct {
	name      string
	newReader ReaderFactory
	forward   ForwardFunc
	logger    *zap.Logger
	backoff   time.Duration
}

func NewConsumer(name string, factory ReaderFactory, forward ForwardFunc, logger *zap.Logger) *Consumer {
	return &Consumer{
		name:      name,
		newReader: factory,
		forward:   forward,
		logger:    logger,
		backoff:   reconnectBackoff,
	}
}

// NewKafkaReaderFactory builds group readers for a topic. Consumer-group
// state is durable on the broker, so recreating the reader is idempotent.
func NewKafkaReaderFactory(brokers []string, topic, groupID string) ReaderFactory {
	return func() Reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        200 * time.Millisecond,
			SessionTimeout: 10 * time.Second,
		})
	}
}

// Run blocks until ctx is cancelled, cycling disconnected -> connecting ->
// consuming and back on any broker failure.
func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		c.logger.Info("Broker consumer connecting", zap.String("consumer", c.name))
		reader := c.newReader()

		err := c.consume(ctx, reader)
		reader.Close()

		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			c.logger.Info("Broker consumer stopped", zap.String("consumer", c.name))
			return
		}

		c.logger.Warn("Broker connection lost, reconnecting",
			zap.String("consumer", c.name), zap.Duration("backoff", c.backoff), zap.Error(err))

		select {
		case <-time.After(c.backoff):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) consume(ctx context.Context, reader Reader) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		if err := c.forward(string(msg.Key), msg.Value); err != nil {
			// Nack: tear the reader down without committing. Commits are
			// group offsets, so consuming past the failed message would
			// acknowledge it implicitly; the refreshed reader re-fetches
			// it after the backoff instead.
			c.logger.Error("Message rejected (nack)",
				zap.String("consumer", c.name), zap.String("key", string(msg.Key)), zap.Error(err))
			return err
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}
