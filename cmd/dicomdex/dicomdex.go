// Package dicomdexcmder
package dicomdexcmder

import (
	ingestcmder "github.com/dicomdex/dicomdex/cmd/dicomdex/ingest"
	rebuildcmder "github.com/dicomdex/dicomdex/cmd/dicomdex/rebuild"
	removecmder "github.com/dicomdex/dicomdex/cmd/dicomdex/remove"
	servecmder "github.com/dicomdex/dicomdex/cmd/dicomdex/serve"
	versioncmder "github.com/dicomdex/dicomdex/cmd/dicomdex/version"
	"github.com/dicomdex/dicomdex/pkg/utils"
	"github.com/spf13/cobra"
)

const dicomdexLongDesc string = `Dicomdex indexes medical imaging series by embedding vector and serves
nearest-neighbor retrieval over them.

Run pipelines and services using:
  dicomdex ingest <dir>    Ingest a directory of series files
  dicomdex rebuild         Rebuild the embedding index from stored metadata
  dicomdex remove <uid>    Delete series metadata (index stays stale until rebuild)
  dicomdex serve           Run the HTTP API server`

const dicomdexShortDesc string = "Dicomdex - DICOM series similarity index"

func NewDicomdexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dicomdex",
		Short:   dicomdexShortDesc,
		Long:    dicomdexLongDesc,
		Version: utils.Version,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: working directory)")

	// Add subcommands
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(rebuildcmder.NewRebuildCmd())
	cmd.AddCommand(removecmder.NewRemoveCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
