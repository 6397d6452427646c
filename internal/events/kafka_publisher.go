package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sawaari/driveshare-backend/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Standard header keys
const (
	HeaderEventType   = "event-type"
	HeaderSource      = "source"
	HeaderContentType = "content-type"

	sourceName = "driveshare-reservations"
)

// messageWriter is the subset of *kafka.Writer the publisher needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher streams seat events to a topic keyed by trip, so every event
// for one trip lands on the same partition in commit order.
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	logger  *logrus.Logger
}

// NewKafkaPublisher creates a publisher writing to the given brokers
func NewKafkaPublisher(brokers []string, topic string, logger *logrus.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	return newKafkaPublisher(newKafkaWriter(brokers, topic, logger), topic, logger), nil
}

// newKafkaWriter builds an async writer. WriteMessages only enqueues; delivery
// failures surface in Completion.
func newKafkaWriter(brokers []string, topic string, logger *logrus.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err == nil {
				return
			}
			logger.WithError(err).WithFields(logrus.Fields{
				"topic":    topic,
				"messages": len(messages),
			}).Error("Failed to deliver seat events")
		},
		Logger:      kafka.LoggerFunc(func(msg string, args ...any) {}),
		ErrorLogger: kafka.LoggerFunc(logger.Errorf),
	}
}

func newKafkaPublisher(writer messageWriter, topic string, logger *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  writer,
		topic:   topic,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Publish writes one event. Failures are logged; the reservation has already committed.
func (p *KafkaPublisher) Publish(ctx context.Context, event models.SeatEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).WithField("event_id", event.ID).Error("Failed to encode seat event")
		return
	}

	msg := kafka.Message{
		Key:   []byte(event.TripID.String()),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(event.Type)},
			{Key: HeaderSource, Value: []byte(sourceName)},
			{Key: HeaderContentType, Value: []byte("application/json")},
		},
	}

	// Detached from the request so a client disconnect does not drop the event
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"topic":      p.topic,
			"event_type": event.Type,
			"trip_id":    event.TripID,
		}).Error("Failed to publish seat event")
	}
}

// Close flushes pending writes
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
