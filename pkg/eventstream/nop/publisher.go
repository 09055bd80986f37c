package nop

import (
	"context"

	"github.com/dicomdex/dicomdex/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishSeries validates input and otherwise does nothing.
func (p *Publisher) PublishSeries(_ context.Context, event *eventstream.SeriesEvent) error {
	if event == nil {
		return eventstream.ErrNilSeriesEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
