// Package features defines the feature extraction contract. The embedding
// model itself is an external collaborator; dicomdex only ships clients for
// it. An Extractor is a single-owner handle: it is stateful on the serving
// side and must not be invoked concurrently without an external pooling
// layer.
package features

import (
	"context"
	"errors"
)

// ErrExtraction is returned when feature extraction fails.
var ErrExtraction = errors.New("feature extraction failed")

// Extractor maps one reconstructed series directory to a fixed-length
// embedding vector.
type Extractor interface {
	// Extract reads the series' frames from seriesDir and returns its
	// embedding.
	Extract(ctx context.Context, seriesDir string) ([]float32, error)

	// Close releases any resources held by the extractor.
	Close() error
}
