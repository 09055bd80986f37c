package pipeline

import (
	"context"
	"fmt"

	"github.com/dicomdex/dicomdex/pkg/eventstream"
)

// Rebuild regenerates the embedding index from scratch out of the current
// metadata store contents. Any existing index is discarded first. This is the
// only supported recovery path after deletions have introduced index/metadata
// divergence, or after index loss.
//
// Per-series failures (missing files, extraction errors, path-count
// mismatches) are logged and skipped; the rebuilt index simply excludes those
// series until the underlying problem is fixed and the rebuild is rerun.
func (p *Pipeline) Rebuild(ctx context.Context) (*RebuildResult, error) {
	descriptions, err := p.deps.Store.ListDescriptions(ctx, p.cfg.TomographyType)
	if err != nil {
		return nil, fmt.Errorf("listing descriptions: %w", err)
	}

	index, err := p.deps.OpenIndex(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("opening fresh embedding index: %w", err)
	}
	defer index.Close()

	result := &RebuildResult{Total: len(descriptions)}

	var (
		ids     []int64
		vectors [][]float32
	)
	for _, desc := range descriptions {
		paths, err := p.deps.Store.PathsBySeriesUID(ctx, desc.SeriesUID)
		if err != nil {
			p.deps.Logger.Warn("skipping series, path lookup failed",
				"series_uid", desc.SeriesUID, "error", err)
			result.Skipped++
			continue
		}
		if len(paths) != desc.AcquisitionCount {
			p.deps.Logger.Warn("skipping series, path count mismatch",
				"series_uid", desc.SeriesUID,
				"paths", len(paths),
				"acquisition_count", desc.AcquisitionCount,
			)
			result.Skipped++
			continue
		}

		vec, err := p.extractSeries(ctx, paths)
		if err != nil {
			p.deps.Logger.Warn("skipping series, feature extraction failed",
				"series_uid", desc.SeriesUID, "error", err)
			result.Skipped++
			continue
		}

		ids = append(ids, desc.IndexID)
		vectors = append(vectors, vec)
	}

	if len(ids) > 0 {
		if err := index.AddBatch(ctx, ids, vectors); err != nil {
			return result, fmt.Errorf("writing embedding batch: %w", err)
		}
	}
	result.Indexed = len(ids)
	result.IndexTotal = p.indexTotal(ctx, index)

	event := eventstream.NewSeriesEvent(eventstream.EventTypeIndexRebuilt, p.cfg.TomographyType)
	event.SeriesCount = result.Indexed
	p.publish(ctx, event)

	p.deps.Logger.Info("rebuild complete",
		"tomography_type", p.cfg.TomographyType,
		"indexed", result.Indexed,
		"skipped", result.Skipped,
		"index_total", result.IndexTotal,
	)

	return result, nil
}
