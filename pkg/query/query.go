// Package query answers similarity searches and exact metadata lookups. It
// only reads the stores, so concurrent requests are safe alongside each other
// (though not alongside a rebuild of the same index).
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dicomdex/dicomdex/pkg/config"
	"github.com/dicomdex/dicomdex/pkg/metadata"
	"github.com/dicomdex/dicomdex/pkg/vector"
)

const (
	// TopKMin and TopKMax bound the neighbor count a search may request.
	TopKMin = 1
	TopKMax = 20
)

// ValidationError marks a request rejected before any search work was
// attempted. Transport layers map it to a client error rather than a server
// fault.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + e.Reason
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// SearchResult is one similarity hit joined back to its metadata.
type SearchResult struct {
	Record   metadata.DescriptionRecord `json:"record"`
	Distance float32                    `json:"distance"`
}

// OpenIndexFunc opens the existing embedding index for a tomography type.
// A missing index reports vector.ErrIndexMissing.
type OpenIndexFunc func(ctx context.Context, tomographyType string) (vector.Index, error)

// Service joins the embedding index with the metadata store for reads.
type Service struct {
	cfg       *config.Config
	store     metadata.Store
	openIndex OpenIndexFunc
	logger    *slog.Logger
}

// NewService validates the collaborators and returns a ready Service.
func NewService(cfg *config.Config, store metadata.Store, openIndex OpenIndexFunc, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if openIndex == nil {
		return nil, fmt.Errorf("index opener is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{cfg: cfg, store: store, openIndex: openIndex, logger: logger}, nil
}

// SearchSimilar returns up to topK nearest series for the query vector,
// sorted by ascending distance. Hits whose metadata has been deleted since
// the index was last rebuilt are dropped with a warning, so every returned
// result resolves to a live record.
func (s *Service) SearchSimilar(ctx context.Context, tomographyType string, queryVec []float32, topK int) ([]SearchResult, error) {
	tomo, err := s.cfg.TomographyType(tomographyType)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown tomography type %q", tomographyType)}
	}
	if uint(len(queryVec)) != tomo.Dimensions {
		return nil, &ValidationError{Reason: fmt.Sprintf(
			"query vector has %d dimensions, %s requires %d",
			len(queryVec), tomographyType, tomo.Dimensions,
		)}
	}
	if topK < TopKMin || topK > TopKMax {
		return nil, &ValidationError{Reason: fmt.Sprintf(
			"top_k must be between %d and %d, got %d", TopKMin, TopKMax, topK,
		)}
	}

	index, err := s.openIndex(ctx, tomographyType)
	if err != nil {
		if errors.Is(err, vector.ErrIndexMissing) {
			return nil, &ValidationError{Reason: fmt.Sprintf("no index exists for %s", tomographyType)}
		}
		return nil, fmt.Errorf("opening embedding index: %w", err)
	}
	defer index.Close()

	hits, err := index.Search(ctx, queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching embedding index: %w", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		rec, err := s.store.DescriptionByIndexID(ctx, hit.ID)
		if err != nil {
			var notFound metadata.ErrNotFound
			if errors.As(err, &notFound) {
				s.logger.Warn("dropping stale index hit", "index_id", hit.ID)
				continue
			}
			return nil, fmt.Errorf("resolving index id %d: %w", hit.ID, err)
		}
		results = append(results, SearchResult{Record: *rec, Distance: hit.Distance})
	}

	return results, nil
}

// LookupByIndexIDs resolves each id to its description. Best-effort: missing
// ids are logged and omitted.
func (s *Service) LookupByIndexIDs(ctx context.Context, ids []int64) ([]metadata.DescriptionRecord, error) {
	records := make([]metadata.DescriptionRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.store.DescriptionByIndexID(ctx, id)
		if err != nil {
			var notFound metadata.ErrNotFound
			if errors.As(err, &notFound) {
				s.logger.Warn("no description for index id", "index_id", id)
				continue
			}
			return nil, fmt.Errorf("resolving index id %d: %w", id, err)
		}
		records = append(records, *rec)
	}

	return records, nil
}

// LookupPathsBySeriesPrefix returns all PathRecords whose series UID starts
// with the given prefix, ordered by instance number.
func (s *Service) LookupPathsBySeriesPrefix(ctx context.Context, seriesUID string) ([]metadata.PathRecord, error) {
	return s.store.PathsBySeriesPrefix(ctx, seriesUID)
}
