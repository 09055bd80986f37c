// Package sqlitevec provides a file-backed embedding index using sqlite-vec.
//
// One index file exists per tomography type. The vec0 rowid of each stored
// embedding is the metadata store's IndexID, so no separate id mapping table
// is needed. Persistence is write-through: a committed AddBatch is durable in
// the index file.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dicomdex/dicomdex/pkg/vector"
)

// Index implements vector.Index using SQLite with the sqlite-vec extension.
type Index struct {
	db         *sql.DB
	dimensions uint
	logger     *slog.Logger
}

// Mode controls how Open treats the index file.
type Mode int

const (
	// ModeCreate opens the index file, creating an empty one if absent.
	// Used by ingestion.
	ModeCreate Mode = iota

	// ModeExisting requires the index file to already exist. Used by queries,
	// where a missing index is a validation failure rather than an empty
	// result.
	ModeExisting

	// ModeFresh discards any existing index file and starts empty. Used by
	// rebuild.
	ModeFresh
)

// Config holds configuration for the sqlite-vec index.
type Config struct {
	// Path is the index file location. ":memory:" is allowed for tests.
	Path string

	// Dimensions is the fixed embedding length. Must be non-zero.
	Dimensions uint

	// Mode controls file creation semantics. Defaults to ModeCreate.
	Mode Mode
}

// Open opens or creates the index per the configured mode.
func Open(c Config, logger *slog.Logger) (*Index, error) {
	sqlite_vec.Auto()

	if c.Path == "" {
		return nil, fmt.Errorf("index path is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("embedding dimensions cannot be 0, must be configured")
	}

	if c.Path != ":memory:" {
		switch c.Mode {
		case ModeExisting:
			if _, err := os.Stat(c.Path); errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", vector.ErrIndexMissing, c.Path)
			} else if err != nil {
				return nil, fmt.Errorf("checking index file: %w", err)
			}
		case ModeFresh:
			if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("removing stale index file: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", c.Path)
	if err != nil {
		return nil, fmt.Errorf("opening index file: %w", err)
	}

	// One pooled connection: vec0 writes serialize anyway, and ":memory:"
	// databases would otherwise split per connection.
	db.SetMaxOpenConns(1)

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS series_embeddings USING vec0(embedding float[%d])`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Debug("sqlite-vec index opened",
		"path", c.Path,
		"dimensions", c.Dimensions,
		"vec_version", vecVersion,
	)

	return &Index{
		db:         db,
		dimensions: c.Dimensions,
		logger:     logger,
	}, nil
}

// serializeFloat32 converts a float32 slice to the little-endian BLOB format
// sqlite-vec expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// AddBatch stores vectors keyed by their metadata IndexIDs in one
// transaction. A failure rolls the whole batch back.
func (idx *Index) AddBatch(ctx context.Context, ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("%w: %d ids, %d vectors", vector.ErrBatchMismatch, len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}

	for i, v := range vectors {
		if uint(len(v)) != idx.dimensions {
			return fmt.Errorf("%w: vector for id %d has length %d, want %d",
				vector.ErrDimensionMismatch, ids[i], len(v), idx.dimensions)
		}
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for i, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO series_embeddings(rowid, embedding) VALUES (?, ?)`,
			id, serializeFloat32(vectors[i]),
		); err != nil {
			return fmt.Errorf("inserting embedding for id %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}

	idx.logger.Debug("added embeddings", "count", len(ids))
	return nil
}

// Search returns up to k nearest neighbors by L2 distance, ascending.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]vector.Hit, error) {
	if uint(len(query)) != idx.dimensions {
		return nil, fmt.Errorf("%w: query has length %d, want %d",
			vector.ErrDimensionMismatch, len(query), idx.dimensions)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	rows, err := idx.db.QueryContext(ctx, `
		SELECT rowid, distance
		FROM series_embeddings
		WHERE embedding MATCH ?
			AND k = ?
		ORDER BY distance`,
		serializeFloat32(query), k,
	)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var hits []vector.Hit
	for rows.Next() {
		var (
			id       int64
			distance float64
		)
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		hits = append(hits, vector.Hit{ID: id, Distance: float32(distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hits: %w", err)
	}

	return hits, nil
}

// Count returns the number of stored vectors.
func (idx *Index) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := idx.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM series_embeddings`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting embeddings: %w", err)
	}
	return n, nil
}

// Close releases resources held by the index.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Ensure Index implements vector.Index.
var _ vector.Index = (*Index)(nil)
