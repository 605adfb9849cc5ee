// Package kafka publishes ledger events to Kafka.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"ledger/internal/domain/event"
)

const writeTimeout = 10 * time.Second

// Header keys set on every published message.
const (
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
	HeaderAggregateID   = "aggregate_id"
)

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes outbox events to a single topic. Writes are synchronous so
// the relay only marks an event sent after the broker acknowledged it.
type Producer struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewProducer creates a producer for topic on the given brokers.
func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	logger = logger.Named("kafka").With(zap.String("topic", topic))
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		Logger:       kafka.LoggerFunc(func(msg string, args ...any) { logger.Debug(fmt.Sprintf(msg, args...)) }),
		ErrorLogger:  kafka.LoggerFunc(func(msg string, args ...any) { logger.Error(fmt.Sprintf(msg, args...)) }),
	}
	return &Producer{writer: writer, topic: topic, logger: logger}
}

// newMessage maps an outbox event to a Kafka message. The key is the event's
// partition key so events of the same account land on one partition in order.
func newMessage(e *event.Event) kafka.Message {
	return kafka.Message{
		Key:   []byte(e.Key),
		Value: e.Payload,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(e.ID)},
			{Key: HeaderEventType, Value: []byte(e.Type)},
			{Key: HeaderAggregateType, Value: []byte(e.AggregateType)},
			{Key: HeaderAggregateID, Value: []byte(e.AggregateID)},
		},
		Time: e.CreatedAt,
	}
}

// Publish writes one event and waits for the broker acknowledgement.
func (p *Producer) Publish(ctx context.Context, e *event.Event) error {
	produceCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(produceCtx, newMessage(e)); err != nil {
		return fmt.Errorf("failed to produce message to Kafka: %w", err)
	}
	p.logger.Debug("Event published",
		zap.String("event_id", e.ID),
		zap.String("event_type", string(e.Type)),
		zap.String("key", e.Key),
	)
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	p.logger.Info("Kafka producer closed")
	return nil
}

// EnsureTopic creates the topic through the cluster controller if it does
// not exist yet.
func EnsureTopic(ctx context.Context, brokers []string, topic string, partitions int, logger *zap.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no Kafka brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker for admin operations: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get kafka controller: %w", err)
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
	if errors.Is(err, kafka.TopicAlreadyExists) {
		logger.Info("Kafka topic already exists", zap.String("topic", topic))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create Kafka topic: %w", err)
	}
	logger.Info("Kafka topic ensured", zap.String("topic", topic), zap.Int("partitions", partitions))
	return nil
}
