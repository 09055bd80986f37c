package testutils

import (
	"context"
	"fmt"
	"sort"

	"github.com/dicomdex/dicomdex/pkg/vector"
)

// MemoryIndex is an in-memory embedding index with real squared-Euclidean
// search, for tests that exercise pipeline and query semantics without a
// database file.
type MemoryIndex struct {
	IDs     []int64
	Vectors [][]float32

	// FailAdd causes AddBatch to return an error and store nothing.
	FailAdd bool
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (m *MemoryIndex) AddBatch(_ context.Context, ids []int64, vectors [][]float32) error {
	if m.FailAdd {
		return fmt.Errorf("mock index write failure")
	}
	if len(ids) != len(vectors) {
		return vector.ErrBatchMismatch
	}

	m.IDs = append(m.IDs, ids...)
	m.Vectors = append(m.Vectors, vectors...)

	return nil
}

func (m *MemoryIndex) Search(_ context.Context, query []float32, k int) ([]vector.Hit, error) {
	hits := make([]vector.Hit, 0, len(m.IDs))
	for i, id := range m.IDs {
		var dist float32
		for j := range query {
			d := query[j] - m.Vectors[i][j]
			dist += d * d
		}
		hits = append(hits, vector.Hit{ID: id, Distance: dist})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}

	return hits, nil
}

func (m *MemoryIndex) Count(_ context.Context) (int64, error) {
	return int64(len(m.IDs)), nil
}

func (m *MemoryIndex) Close() error {
	return nil
}
