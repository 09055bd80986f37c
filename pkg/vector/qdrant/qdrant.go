// Package qdrant provides a remote embedding index backed by a Qdrant
// collection, one collection per tomography type. It satisfies the same
// append-only contract as the file-backed index: no per-point delete is
// exposed, and rebuild drops and recreates the whole collection.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"

	qdrantclient "github.com/qdrant/go-client/qdrant"

	"github.com/dicomdex/dicomdex/pkg/vector"
)

// Index implements vector.Index using Qdrant's gRPC API.
type Index struct {
	client     *qdrantclient.Client
	collection string
	dimensions uint
	logger     *slog.Logger
}

// Mode mirrors the file-backed index open semantics for a remote collection.
type Mode int

const (
	// ModeCreate creates the collection if it does not exist.
	ModeCreate Mode = iota

	// ModeExisting requires the collection to already exist.
	ModeExisting

	// ModeFresh drops any existing collection and recreates it empty.
	ModeFresh
)

// Config holds configuration for the Qdrant index.
type Config struct {
	// Host is the Qdrant gRPC host.
	Host string

	// Port is the Qdrant gRPC port (typically 6334).
	Port int

	// Collection is the collection name, one per tomography type.
	Collection string

	// Dimensions is the fixed embedding length. Must be non-zero.
	Dimensions uint

	// Mode controls collection creation semantics. Defaults to ModeCreate.
	Mode Mode
}

// Open connects to Qdrant and prepares the collection per the configured
// mode.
func Open(ctx context.Context, c Config, logger *slog.Logger) (*Index, error) {
	if c.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("embedding dimensions cannot be 0, must be configured")
	}

	client, err := qdrantclient.NewClient(&qdrantclient.Config{
		Host: c.Host,
		Port: c.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, c.Collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection: %v", vector.ErrConnection, err)
	}

	switch c.Mode {
	case ModeExisting:
		if !exists {
			client.Close()
			return nil, fmt.Errorf("%w: collection %s", vector.ErrIndexMissing, c.Collection)
		}
	case ModeFresh:
		if exists {
			if err := client.DeleteCollection(ctx, c.Collection); err != nil {
				client.Close()
				return nil, fmt.Errorf("dropping collection %s: %w", c.Collection, err)
			}
		}
		exists = false
		fallthrough
	case ModeCreate:
		if !exists {
			err := client.CreateCollection(ctx, &qdrantclient.CreateCollection{
				CollectionName: c.Collection,
				VectorsConfig: qdrantclient.NewVectorsConfig(&qdrantclient.VectorParams{
					Size:     uint64(c.Dimensions),
					Distance: qdrantclient.Distance_Euclid,
				}),
			})
			if err != nil {
				client.Close()
				return nil, fmt.Errorf("creating collection %s: %w", c.Collection, err)
			}
		}
	}

	logger.Debug("qdrant index opened",
		"collection", c.Collection,
		"dimensions", c.Dimensions,
	)

	return &Index{
		client:     client,
		collection: c.Collection,
		dimensions: c.Dimensions,
		logger:     logger,
	}, nil
}

// AddBatch upserts vectors keyed by their metadata IndexIDs in one call.
func (idx *Index) AddBatch(ctx context.Context, ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("%w: %d ids, %d vectors", vector.ErrBatchMismatch, len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}

	points := make([]*qdrantclient.PointStruct, 0, len(ids))
	for i, id := range ids {
		if uint(len(vectors[i])) != idx.dimensions {
			return fmt.Errorf("%w: vector for id %d has length %d, want %d",
				vector.ErrDimensionMismatch, id, len(vectors[i]), idx.dimensions)
		}
		points = append(points, &qdrantclient.PointStruct{
			Id:      qdrantclient.NewIDNum(uint64(id)),
			Vectors: qdrantclient.NewVectors(vectors[i]...),
		})
	}

	_, err := idx.client.Upsert(ctx, &qdrantclient.UpsertPoints{
		CollectionName: idx.collection,
		Wait:           qdrantclient.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting %d points: %w", len(points), err)
	}

	idx.logger.Debug("added embeddings", "collection", idx.collection, "count", len(points))
	return nil
}

// Search returns up to k nearest neighbors by Euclidean distance, ascending.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]vector.Hit, error) {
	if uint(len(query)) != idx.dimensions {
		return nil, fmt.Errorf("%w: query has length %d, want %d",
			vector.ErrDimensionMismatch, len(query), idx.dimensions)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	points, err := idx.client.Query(ctx, &qdrantclient.QueryPoints{
		CollectionName: idx.collection,
		Query:          qdrantclient.NewQuery(query...),
		Limit:          qdrantclient.PtrOf(uint64(k)),
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", idx.collection, err)
	}

	hits := make([]vector.Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, vector.Hit{
			ID:       int64(p.GetId().GetNum()),
			Distance: p.GetScore(),
		})
	}

	return hits, nil
}

// Count returns the number of stored vectors.
func (idx *Index) Count(ctx context.Context) (int64, error) {
	n, err := idx.client.Count(ctx, &qdrantclient.CountPoints{
		CollectionName: idx.collection,
		Exact:          qdrantclient.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting points in %s: %w", idx.collection, err)
	}
	return int64(n), nil
}

// Close releases the client connection.
func (idx *Index) Close() error {
	return idx.client.Close()
}

// Ensure Index implements vector.Index.
var _ vector.Index = (*Index)(nil)
