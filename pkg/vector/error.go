package vector

import "errors"

var (
	// ErrBatchMismatch is returned when AddBatch receives mismatched id and
	// vector slice lengths.
	ErrBatchMismatch = errors.New("ids and vectors length mismatch")

	// ErrDimensionMismatch is returned when a vector does not match the
	// index's configured dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrIndexMissing is returned when an index is opened in require-existing
	// mode and its backing file or collection does not exist.
	ErrIndexMissing = errors.New("index does not exist")

	// ErrConnection is returned when the index backend connection fails.
	ErrConnection = errors.New("index backend connection failed")
)
