// Package vector provides the embedding index contract and shared types.
//
// The index is append-only and ID-mapped: every stored vector carries the
// IndexID assigned by the metadata store. There is no delete or update
// operation; removing a vector's influence on search requires a full
// rebuild that excludes it. Concurrent writers against the same index are not
// supported; callers serialize pipeline runs per tomography type externally.
package vector

import "context"

// Hit is a single nearest-neighbor result. Distance is squared Euclidean
// (or the backend's native metric); lower means more similar.
type Hit struct {
	ID       int64
	Distance float32
}

// Index handles storage and similarity search of fixed-length embeddings.
type Index interface {
	// AddBatch stores vectors under the given ids in one atomic batch.
	// len(ids) must equal len(vectors); a failure fails the whole call and
	// stores nothing.
	AddBatch(ctx context.Context, ids []int64, vectors [][]float32) error

	// Search returns up to k nearest neighbors ordered by ascending distance.
	// Fewer than k hits are returned if the index holds fewer entries. Hits
	// whose id no longer resolves in the metadata store are the caller's
	// problem, not the index's.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)

	// Count returns the number of stored vectors.
	Count(ctx context.Context) (int64, error)

	// Close flushes and releases any resources.
	Close() error
}
