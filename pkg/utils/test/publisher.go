package testutils

import (
	"context"
	"fmt"

	"github.com/dicomdex/dicomdex/pkg/eventstream"
)

// RecordingPublisher is a test event publisher that accumulates published
// events.
type RecordingPublisher struct {
	Events []*eventstream.SeriesEvent

	// FailPublish causes PublishSeries to return an error.
	FailPublish bool
}

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (r *RecordingPublisher) PublishSeries(_ context.Context, event *eventstream.SeriesEvent) error {
	if event == nil {
		return eventstream.ErrNilSeriesEvent
	}
	if r.FailPublish {
		return fmt.Errorf("mock publish failure")
	}

	r.Events = append(r.Events, event)

	return nil
}

func (r *RecordingPublisher) Close() error {
	return nil
}

// TypesSeen returns the event types in publish order.
func (r *RecordingPublisher) TypesSeen() []string {
	types := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		types = append(types, e.EventType)
	}

	return types
}
