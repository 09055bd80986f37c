package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dicomdex/dicomdex/pkg/dicom"
	"github.com/dicomdex/dicomdex/pkg/eventstream"
	"github.com/dicomdex/dicomdex/pkg/metadata"
)

// seriesFile is one scanned file with its acquisition position.
type seriesFile struct {
	path           string
	instanceNumber int
}

// seriesGroup collects the files of one series in scan order.
type seriesGroup struct {
	tags  dicom.Tags
	files []seriesFile
}

// Ingest scans sourceDir for series files, persists their metadata, and
// appends one embedding per newly inserted series to the index in a single
// batch.
//
// Ingestion is incremental-only: a series whose UID already exists in the
// store is skipped, leaving its prior vector and metadata untouched. Per-file
// and per-series failures are logged and skipped; only an index open or batch
// write failure fails the run, and metadata written before that point is kept
// (the index is brought back in line by a rebuild).
func (p *Pipeline) Ingest(ctx context.Context, sourceDir string) (*IngestResult, error) {
	index, err := p.deps.OpenIndex(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("opening embedding index: %w", err)
	}
	defer index.Close()

	files, err := dicom.ListFiles(sourceDir)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{ScannedFiles: len(files)}

	groups := make(map[string]*seriesGroup)
	var order []string
	for _, file := range files {
		tags, err := p.deps.TagReader.ReadTags(file)
		if err != nil || tags.SeriesUID == "" {
			p.deps.Logger.Warn("skipping unreadable file", "path", file, "error", err)
			result.UnreadableFiles++
			continue
		}

		group, ok := groups[tags.SeriesUID]
		if !ok {
			group = &seriesGroup{tags: tags}
			groups[tags.SeriesUID] = group
			order = append(order, tags.SeriesUID)
		} else {
			if !group.tags.DescriptionEquals(tags) {
				p.deps.Logger.Warn("conflicting tags within series, last file wins",
					"series_uid", tags.SeriesUID, "path", file)
			}
			group.tags = tags
		}
		group.files = append(group.files, seriesFile{path: file, instanceNumber: tags.InstanceNumber})
	}
	result.SeriesFound = len(order)

	var (
		ids     []int64
		vectors [][]float32
		uids    []string
	)
	for _, uid := range order {
		indexID, vec, ok := p.ingestSeries(ctx, groups[uid], result)
		if !ok {
			continue
		}
		ids = append(ids, indexID)
		vectors = append(vectors, vec)
		uids = append(uids, uid)
	}

	if len(ids) == 0 {
		result.IndexTotal = p.indexTotal(ctx, index)
		p.deps.Logger.Info("no new series to index",
			"tomography_type", p.cfg.TomographyType,
			"scanned", result.ScannedFiles,
			"index_total", result.IndexTotal,
		)
		return result, nil
	}

	if err := index.AddBatch(ctx, ids, vectors); err != nil {
		return result, fmt.Errorf("writing embedding batch: %w", err)
	}
	result.IndexTotal = p.indexTotal(ctx, index)

	for i, uid := range uids {
		event := eventstream.NewSeriesEvent(eventstream.EventTypeSeriesIngested, p.cfg.TomographyType)
		event.SeriesUID = uid
		event.IndexID = ids[i]
		p.publish(ctx, event)
	}

	p.deps.Logger.Info("ingestion complete",
		"tomography_type", p.cfg.TomographyType,
		"indexed", len(ids),
		"duplicates", result.Duplicates,
		"skipped", result.Skipped,
		"index_total", result.IndexTotal,
	)

	return result, nil
}

// ingestSeries persists one series and extracts its embedding. Every failure
// is a per-series skip; the result counters record why.
func (p *Pipeline) ingestSeries(ctx context.Context, group *seriesGroup, result *IngestResult) (int64, []float32, bool) {
	uid := group.tags.SeriesUID
	desc := group.tags.Description(p.cfg.TomographyType, p.cfg.DefaultProtocol)

	if err := desc.Validate(); err != nil {
		p.deps.Logger.Warn("skipping series with invalid tags", "series_uid", uid, "error", err)
		result.Skipped++
		return 0, nil, false
	}

	if err := p.storeFiles(ctx, group); err != nil {
		p.deps.Logger.Warn("skipping series, file storage failed", "series_uid", uid, "error", err)
		result.Skipped++
		return 0, nil, false
	}

	indexID, err := p.deps.Store.CreateDescription(ctx, desc)
	if err != nil {
		var dup metadata.ErrDuplicate
		if errors.As(err, &dup) {
			p.deps.Logger.Info("series already ingested", "series_uid", uid)
			result.Duplicates++
		} else {
			p.deps.Logger.Warn("skipping series, description insert failed", "series_uid", uid, "error", err)
			result.Skipped++
		}
		return 0, nil, false
	}

	paths, err := p.deps.Store.PathsBySeriesUID(ctx, uid)
	if err != nil {
		p.deps.Logger.Warn("skipping series, path lookup failed", "series_uid", uid, "error", err)
		result.Skipped++
		return 0, nil, false
	}
	if len(paths) != desc.AcquisitionCount {
		p.deps.Logger.Warn("skipping series, path count mismatch",
			"series_uid", uid,
			"paths", len(paths),
			"acquisition_count", desc.AcquisitionCount,
		)
		result.Skipped++
		return 0, nil, false
	}

	vec, err := p.extractSeries(ctx, paths)
	if err != nil {
		p.deps.Logger.Warn("skipping series, feature extraction failed", "series_uid", uid, "error", err)
		result.Skipped++
		return 0, nil, false
	}

	result.Ingested++

	return indexID, vec, true
}

// storeFiles copies the group's files under the data root and persists one
// PathRecord per file. Duplicate path rows are tolerated; they surface later
// in the path-count check if the series is genuinely malformed.
func (p *Pipeline) storeFiles(ctx context.Context, group *seriesGroup) error {
	uid := group.tags.SeriesUID
	seriesDir := filepath.Join(p.cfg.DataDir, uid)
	if err := os.MkdirAll(seriesDir, 0o755); err != nil {
		return fmt.Errorf("creating series directory: %w", err)
	}

	for _, file := range group.files {
		base := filepath.Base(file.path)
		if err := copyFile(file.path, filepath.Join(seriesDir, base)); err != nil {
			return err
		}

		rec := metadata.PathRecord{
			SeriesUID:      uid,
			InstanceNumber: file.instanceNumber,
			RelativePath:   filepath.Join(uid, base),
		}
		if err := p.deps.Store.CreatePath(ctx, rec); err != nil {
			var dup metadata.ErrDuplicate
			if !errors.As(err, &dup) {
				return fmt.Errorf("persisting path record: %w", err)
			}
			p.deps.Logger.Debug("path record already exists",
				"series_uid", uid, "instance_number", file.instanceNumber)
		}
	}

	return nil
}
