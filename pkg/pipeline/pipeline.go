// Package pipeline implements the workflows that keep the metadata store and
// the embedding index consistent: ingestion, full rebuild, and deletion.
//
// Runs against the same tomography type must not interleave; the embedding
// index has no compare-and-swap semantics, so callers serialize pipeline
// invocations externally. Query traffic is read-only and may run alongside.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dicomdex/dicomdex/pkg/dicom"
	"github.com/dicomdex/dicomdex/pkg/eventstream"
	"github.com/dicomdex/dicomdex/pkg/eventstream/nop"
	"github.com/dicomdex/dicomdex/pkg/features"
	"github.com/dicomdex/dicomdex/pkg/metadata"
	"github.com/dicomdex/dicomdex/pkg/vector"
)

// OpenIndexFunc opens the embedding index for the pipeline's tomography type.
// A fresh open discards any existing index and starts empty; otherwise the
// index is created if absent.
type OpenIndexFunc func(ctx context.Context, fresh bool) (vector.Index, error)

// Deps carries the collaborators a Pipeline drives. Store, TagReader,
// Extractor, and OpenIndex are required; Events defaults to the no-op
// publisher and Logger to slog.Default().
type Deps struct {
	Store     metadata.Store
	Extractor features.Extractor
	TagReader dicom.TagReader
	OpenIndex OpenIndexFunc
	Events    eventstream.Publisher
	Logger    *slog.Logger
}

// Config fixes the pipeline to one tomography type and one file root.
type Config struct {
	// TomographyType names the configured type this pipeline serves.
	TomographyType string

	// DefaultProtocol fills ProtocolName when a series carries none.
	DefaultProtocol string

	// DataDir is the root under which series files are stored; PathRecord
	// paths are relative to it.
	DataDir string
}

// Pipeline coordinates ingestion, rebuild, and deletion for one tomography
// type. A single logical worker per invocation; no internal parallelism.
type Pipeline struct {
	cfg  Config
	deps Deps
}

// New validates the dependencies and returns a ready Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if cfg.TomographyType == "" {
		return nil, fmt.Errorf("tomography type is required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if deps.TagReader == nil {
		return nil, fmt.Errorf("tag reader is required")
	}
	if deps.Extractor == nil {
		return nil, fmt.Errorf("feature extractor is required")
	}
	if deps.OpenIndex == nil {
		return nil, fmt.Errorf("index opener is required")
	}
	if deps.Events == nil {
		deps.Events = nop.NewPublisher()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Pipeline{cfg: cfg, deps: deps}, nil
}

// extractSeries reconstructs the series' file set into a scratch directory,
// runs the feature extractor on it, and releases the scratch space on every
// exit path.
func (p *Pipeline) extractSeries(ctx context.Context, records []metadata.PathRecord) ([]float32, error) {
	scratch, err := os.MkdirTemp("", "dicomdex-series-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	// Frames are staged under zero-padded instance numbers so the extractor
	// sees them in acquisition order.
	for _, rec := range records {
		src := filepath.Join(p.cfg.DataDir, rec.RelativePath)
		dst := filepath.Join(scratch, fmt.Sprintf("%04d.dcm", rec.InstanceNumber))
		if err := copyFile(src, dst); err != nil {
			return nil, err
		}
	}

	return p.deps.Extractor.Extract(ctx, scratch)
}

// publish sends a lifecycle event; failures are logged and never fail a
// pipeline run.
// indexTotal reports the index size for result summaries. A counting failure
// only logs; the pipeline outcome is already decided by then.
func (p *Pipeline) indexTotal(ctx context.Context, index vector.Index) int64 {
	total, err := index.Count(ctx)
	if err != nil {
		p.deps.Logger.Warn("could not count index entries", "error", err)
		return 0
	}
	return total
}

func (p *Pipeline) publish(ctx context.Context, event *eventstream.SeriesEvent) {
	if err := p.deps.Events.PublishSeries(ctx, event); err != nil {
		p.deps.Logger.Warn("failed to publish event",
			"event_type", event.EventType,
			"series_uid", event.SeriesUID,
			"error", err,
		)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}

	return nil
}
