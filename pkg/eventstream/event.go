package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeSeriesIngested is emitted after a series is fully ingested.
	EventTypeSeriesIngested = "dicomdex.series.ingested"

	// EventTypeSeriesDeleted is emitted after a series' metadata is deleted.
	EventTypeSeriesDeleted = "dicomdex.series.deleted"

	// EventTypeIndexRebuilt is emitted after an index rebuild completes.
	EventTypeIndexRebuilt = "dicomdex.index.rebuilt"
)

// SeriesEvent is a transport-neutral event payload for a series lifecycle
// change or an index rebuild.
type SeriesEvent struct {
	SchemaVersion  int       `json:"schema_version"`
	EventType      string    `json:"event_type"`
	EventID        string    `json:"event_id"`
	EmittedAt      time.Time `json:"emitted_at"`
	TomographyType string    `json:"tomography_type"`
	SeriesUID      string    `json:"series_uid,omitempty"`
	IndexID        int64     `json:"index_id,omitempty"`
	SeriesCount    int       `json:"series_count,omitempty"`
}

// NewSeriesEvent builds an event of the given type with a fresh id and
// timestamp.
func NewSeriesEvent(eventType, tomographyType string) *SeriesEvent {
	return &SeriesEvent{
		SchemaVersion:  SchemaVersionV1,
		EventType:      eventType,
		EventID:        uuid.NewString(),
		EmittedAt:      time.Now().UTC(),
		TomographyType: tomographyType,
	}
}
