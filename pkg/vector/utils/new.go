// Package vectorutils constructs embedding index backends from configuration.
package vectorutils

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/dicomdex/dicomdex/pkg/vector"
	"github.com/dicomdex/dicomdex/pkg/vector/qdrant"
	"github.com/dicomdex/dicomdex/pkg/vector/sqlitevec"
)

// Mode mirrors the backend open modes at the factory level.
type Mode int

const (
	// ModeCreate opens the index, creating it if absent.
	ModeCreate Mode = iota

	// ModeExisting requires the index to already exist.
	ModeExisting

	// ModeFresh discards any existing index and starts empty.
	ModeFresh
)

// NewIndexOpts selects and configures an index backend.
type NewIndexOpts struct {
	// Provider is "sqlitevec" or "qdrant".
	Provider string

	// Path is the index file location (sqlitevec only).
	Path string

	// Target is the remote address, host:port (qdrant only).
	Target string

	// Collection is the remote collection name (qdrant only); conventionally
	// the tomography type name.
	Collection string

	// Dimensions is the fixed embedding length.
	Dimensions uint

	Mode   Mode
	Logger *slog.Logger
}

// NewIndex opens an embedding index for the given backend.
func NewIndex(ctx context.Context, o *NewIndexOpts) (vector.Index, error) {
	switch o.Provider {
	case "sqlitevec":
		return sqlitevec.Open(sqlitevec.Config{
			Path:       o.Path,
			Dimensions: o.Dimensions,
			Mode:       sqlitevec.Mode(o.Mode),
		}, o.Logger)
	case "qdrant":
		host, port, err := splitTarget(o.Target)
		if err != nil {
			return nil, err
		}
		return qdrant.Open(ctx, qdrant.Config{
			Host:       host,
			Port:       port,
			Collection: o.Collection,
			Dimensions: o.Dimensions,
			Mode:       qdrant.Mode(o.Mode),
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.Provider)
	}
}

// splitTarget parses "host:port" into its parts.
func splitTarget(target string) (string, int, error) {
	if target == "" {
		return "", 0, fmt.Errorf("vector store target is required for remote backends")
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return "", 0, fmt.Errorf("parsing vector store target %q: %w", target, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("parsing vector store port %q: %w", portStr, err)
	}

	return host, port, nil
}
