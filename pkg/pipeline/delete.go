package pipeline

import (
	"context"
	"errors"

	"github.com/dicomdex/dicomdex/pkg/eventstream"
	"github.com/dicomdex/dicomdex/pkg/metadata"
)

// Delete removes each series' metadata rows; paths and description go
// together in one transaction per series. The embedding index is deliberately
// not touched: its entries for deleted series stay behind as documented
// staleness until the next rebuild, and query-time filtering hides them
// meanwhile.
//
// Unknown UIDs are logged and skipped, never an error for the run.
func (p *Pipeline) Delete(ctx context.Context, seriesUIDs []string) (*DeleteResult, error) {
	result := &DeleteResult{Requested: len(seriesUIDs)}

	for _, uid := range seriesUIDs {
		if err := p.deps.Store.DeleteSeries(ctx, uid); err != nil {
			var notFound metadata.ErrNotFound
			if errors.As(err, &notFound) {
				p.deps.Logger.Info("series not found, skipping", "series_uid", uid)
				result.Missing++
			} else {
				p.deps.Logger.Warn("failed to delete series", "series_uid", uid, "error", err)
				result.Failed++
			}
			continue
		}

		result.Deleted++

		event := eventstream.NewSeriesEvent(eventstream.EventTypeSeriesDeleted, p.cfg.TomographyType)
		event.SeriesUID = uid
		p.publish(ctx, event)
	}

	p.deps.Logger.Info("deletion complete",
		"tomography_type", p.cfg.TomographyType,
		"deleted", result.Deleted,
		"missing", result.Missing,
		"failed", result.Failed,
	)

	return result, nil
}
