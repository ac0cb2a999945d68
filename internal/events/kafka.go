package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/stockengine/internal/orders"
	"github.com/angelmondragon/stockengine/pkg/config"
	"github.com/angelmondragon/stockengine/pkg/outbox"
)

const (
	headerEventType     = "event_type"
	headerAggregateType = "aggregate_type"
)

// MessageWriter is the part of kafka.Writer the emitter and relay use.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter builds a synchronous writer for the order events topic.
// Messages are keyed by order id so one order's events stay on one partition.
func NewKafkaWriter(cfg config.KafkaConfig) (*kafka.Writer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka brokers not configured")
	}
	if cfg.OrderEventsTopic == "" {
		return nil, errors.New("order events topic required")
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.OrderEventsTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}, nil
}

// KafkaEmitter publishes status changes straight to the broker.
type KafkaEmitter struct {
	writer MessageWriter
}

// NewKafkaEmitter wraps a writer.
func NewKafkaEmitter(writer MessageWriter) (*KafkaEmitter, error) {
	if writer == nil {
		return nil, errors.New("kafka writer required")
	}
	return &KafkaEmitter{writer: writer}, nil
}

func (e *KafkaEmitter) Emit(ctx context.Context, change orders.StatusChange) error {
	if change.Order == nil {
		return errors.New("status change without order")
	}
	event := domainEvent(change)
	envelope, err := outbox.NewEnvelope(event)
	if err != nil {
		return err
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AggregateID.String()),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(event.EventType)},
			{Key: headerAggregateType, Value: []byte(event.AggregateType)},
		},
	})
}
