package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/shopmesh/api/internal/services"
)

// MessageWriter is the subset of kafka.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOrderPublisher publishes order events to a Kafka topic keyed by user.
type KafkaOrderPublisher struct {
	writer  MessageWriter
	marshal func(any) ([]byte, error)
}

// NewKafkaWriter builds a synchronous writer that waits for all in-sync replicas.
func NewKafkaWriter(brokers []string, topic string) (*kafka.Writer, error) {
	cleaned := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			cleaned = append(cleaned, b)
		}
	}
	if len(cleaned) == 0 {
		return nil, errors.New("kafka order publisher: at least one broker is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka order publisher: topic is required")
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cleaned...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}, nil
}

// NewKafkaOrderPublisher wraps a writer.
func NewKafkaOrderPublisher(writer MessageWriter) (*KafkaOrderPublisher, error) {
	if writer == nil {
		return nil, errors.New("kafka order publisher: writer is required")
	}
	return &KafkaOrderPublisher{writer: writer, marshal: json.Marshal}, nil
}

// PublishOrderPlaced writes a single event. Events for one user share a partition.
func (p *KafkaOrderPublisher) PublishOrderPlaced(ctx context.Context, event services.OrderPlacedEvent) error {
	if p == nil || p.writer == nil {
		return errors.New("kafka order publisher: not initialised")
	}
	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := orderAttributes(event)
	headers := make([]kafka.Header, 0, len(attrs))
	for _, key := range []string{"eventType", "orderId", "userId", "paymentMethod", "lineCount"} {
		if v, ok := attrs[key]; ok {
			headers = append(headers, kafka.Header{Key: key, Value: []byte(v)})
		}
	}

	msg := kafka.Message{
		Key:     []byte(event.UserID),
		Value:   data,
		Headers: headers,
		Time:    event.PlacedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaOrderPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
