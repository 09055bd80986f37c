// Package kafka publishes series events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/dicomdex/dicomdex/pkg/eventstream"
)

// Config holds the connection settings for the Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string
}

// Publisher writes series events to a Kafka topic, keyed by series UID so
// events for one series stay ordered within a partition.
type Publisher struct {
	writer *kafkago.Writer
}

// NewPublisher creates a Kafka-backed eventstream publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("no kafka topic configured")
	}

	return &Publisher{
		writer: &kafkago.Writer{
			Addr:     kafkago.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafkago.LeastBytes{},
		},
	}, nil
}

// PublishSeries marshals the event and writes it to the configured topic.
func (p *Publisher) PublishSeries(ctx context.Context, event *eventstream.SeriesEvent) error {
	if event == nil {
		return eventstream.ErrNilSeriesEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling series event: %w", err)
	}

	key := event.SeriesUID
	if key == "" {
		key = event.TomographyType
	}

	if err := p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(key),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("writing series event: %w", err)
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
