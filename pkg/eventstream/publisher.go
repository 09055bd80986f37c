package eventstream

import "context"

// Publisher publishes series events to an event stream backend.
type Publisher interface {
	PublishSeries(ctx context.Context, event *SeriesEvent) error
	Close() error
}
