package events

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer publishes order events to Kafka. Publishing is best-effort for
// callers; a nil Producer silently drops events.
type Producer struct {
	writer *kafka.Writer
	logger *log.Logger
}

func NewProducer(brokers []string, logger *log.Logger) *Producer {
	if len(brokers) == 0 {
		return nil
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        TopicOrderPlaced,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
		logger: logger,
	}
}

// PublishOrderPlaced writes one OrderPlaced message keyed by order ID.
func (p *Producer) PublishOrderPlaced(ctx context.Context, ev OrderPlaced) error {
	if p == nil {
		return nil
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: value,
	})
	if err != nil {
		p.logger.Printf("events: publish order.placed order_id=%s error=%v", ev.OrderID, err)
		return err
	}
	return nil
}

func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
