package producer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/logging"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/telemetry"
)

const writeTimeout = 5 * time.Second

// messageWriter is the subset of *kafka.Writer used by KafkaProducer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer implements Producer using segmentio/kafka-go. Events for one user share a partition
// so consumers see them in order.
type KafkaProducer struct {
	writer messageWriter
	topic  string
	log    *slog.Logger
}

// NewKafkaProducer creates a Kafka producer that writes session events to the given topic.
// Returns nil when brokers or topic is empty; a nil *KafkaProducer is a valid no-op. Call Close when shutting down.
func NewKafkaProducer(brokers []string, topic string, log *slog.Logger) *KafkaProducer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaProducer{writer: writer, topic: topic, log: logging.OrDefault(log)}
}

// Emit serializes the event as JSON and writes it keyed by user id.
func (p *KafkaProducer) Emit(ctx context.Context, event *telemetry.Event) error {
	if p == nil || p.writer == nil || event == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	var key []byte
	if event.UserID != "" {
		key = []byte(event.UserID)
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   key,
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	})
	if err != nil {
		p.log.Warn("telemetry: kafka emit failed", "topic", p.topic, "error", err)
		return err
	}
	return nil
}

// Close closes the Kafka writer. Safe to call multiple times.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	err := p.writer.Close()
	p.writer = nil
	return err
}
