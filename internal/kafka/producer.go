package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-seating/internal/models"
)

// Producer exports seat-status changes to Kafka so downstream services
// (booking, analytics) observe seat state without touching Redis. The
// real-time path to clients is the pub/sub channel; this export is
// best-effort.
type Producer struct {
	Writer *kafka.Writer
	Topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer, Topic: topic}
}

// PublishSeatStatus streams one seat-status event, keyed by seat so a
// partition preserves per-seat ordering.
func (p *Producer) PublishSeatStatus(ev models.SeatStatusEvent) error {
	msgBytes, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal seat status event: %w", err)
	}

	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: p.Topic,
			Key:   []byte(ev.SeatID),
			Value: msgBytes,
		},
	)
}

// Close flushes and shuts down the writer.
func (p *Producer) Close() error {
	return p.Writer.Close()
}
