package publish

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ICEcream2714/ktpm-btl-cs4/pkg/models"
)

// Compile-time check to ensure Kafka implements Publisher
var _ Publisher = (*Kafka)(nil)

// Writer abstracts kafka.Writer for tests.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Kafka publishes every update on two durable topics: one keyed by the
// observation id, one keyed by its category. When the broker rejects a write
// the publisher degrades to the direct fan-out so currently connected sockets
// still see the update; there is no publisher-side retry queue.
type Kafka struct {
	updates  Writer // keyed by observation id
	types    Writer // keyed by category
	fallback *Direct
	logger   *zap.Logger
}

func NewKafka(updates, types Writer, fallback *Direct, logger *zap.Logger) *Kafka {
	return &Kafka{
		updates:  updates,
		types:    types,
		fallback: fallback,
		logger:   logger,
	}
}

// NewWriter builds a synchronous, durable writer for one topic. Writes are
// acknowledged by the broker before the write path reports success upstream.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func (k *Kafka) PublishObservation(ctx context.Context, obs models.Observation) error {
	value, env, err := encodeObservation(obs)
	if err != nil {
		return err
	}

	err = k.publish(ctx,
		kafka.Message{Key: []byte(obs.ID), Value: value},
		kafka.Message{Key: []byte(obs.Category), Value: env})
	if err != nil {
		k.logger.Warn("Broker publish failed, falling back to direct fan-out",
			zap.String("id", obs.ID), zap.String("category", obs.Category), zap.Error(err))
		return k.fallback.PublishObservation(ctx, obs)
	}
	return nil
}

func (k *Kafka) PublishTombstone(ctx context.Context, category, id string) error {
	value, env, err := encodeTombstone(category, id)
	if err != nil {
		return err
	}

	err = k.publish(ctx,
		kafka.Message{Key: []byte(id), Value: value},
		kafka.Message{Key: []byte(category), Value: env})
	if err != nil {
		k.logger.Warn("Broker tombstone publish failed, falling back to direct fan-out",
			zap.String("id", id), zap.String("category", category), zap.Error(err))
		return k.fallback.PublishTombstone(ctx, category, id)
	}
	return nil
}

func (k *Kafka) publish(ctx context.Context, update, typed kafka.Message) error {
	if err := k.updates.WriteMessages(ctx, update); err != nil {
		return err
	}
	return k.types.WriteMessages(ctx, typed)
}

// EnsureTopics creates the topics if they do not exist yet. Declaration is
// idempotent; an AlreadyExists response is reported as debug noise only.
func EnsureTopics(brokerAddress string, logger *zap.Logger, topics ...string) {
	conn, err := kafka.Dial("tcp", brokerAddress)
	if err != nil {
		logger.Warn("Failed to dial broker for topic creation", zap.Error(err))
		return
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		logger.Warn("Failed to resolve controller", zap.Error(err))
		return
	}

	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		logger.Warn("Failed to dial controller", zap.Error(err))
		return
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1, // single partition preserves per-topic publish order
			ReplicationFactor: 1,
		})
	}

	reportTopicCreation(logger, topics, controllerConn.CreateTopics(configs...))
}

// reportTopicCreation separates the benign redeclaration outcome from real
// failures: a topic that already exists is noise, an unreachable or refusing
// controller is not.
func reportTopicCreation(logger *zap.Logger, topics []string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, kafka.TopicAlreadyExists):
		logger.Debug("Topics already declared", zap.Error(err))
	default:
		logger.Warn("Topic creation failed", zap.Strings("topics", topics), zap.Error(err))
	}
}
