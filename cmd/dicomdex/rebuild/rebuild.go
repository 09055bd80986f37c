// Package rebuildcmder provides the index rebuild cobra command.
package rebuildcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dicomdex/dicomdex/pkg/app"
	"github.com/dicomdex/dicomdex/pkg/config"
	"github.com/dicomdex/dicomdex/pkg/logger"
)

type rebuildCommander struct {
	tomography string

	sqlitePath      string
	storageProvider string
	postgresDSN     string
	dataDir         string
	vectorProvider  string
	vectorTarget    string
	extractorTarget string

	debug bool
	cfg   *config.Config
}

var rebuildFlags = []string{
	config.FlagSQLite,
	config.FlagStorageProvider,
	config.FlagPostgresDSN,
	config.FlagDataDir,
	config.FlagVectorProvider,
	config.FlagVectorTarget,
	config.FlagExtractorTarget,
}

const rebuildLongDesc string = `Rebuild a tomography type's embedding index from stored metadata.

The existing index is discarded, every stored series is re-extracted, and a
fresh index is written in one batch. Run this after deleting series, or after
index file loss, to bring search back in line with the metadata store. It is
the only supported way to remove a deleted series' influence on search.

Run rebuilds as an offline batch job; do not interleave them with ingestion
against the same type.

Example:
  dicomdex rebuild --tomography lumbar_disc`

const rebuildShortDesc string = "Rebuild the embedding index from stored metadata"

func NewRebuildCmd() *cobra.Command {
	cmder := &rebuildCommander{}

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: rebuildShortDesc,
		Long:  rebuildLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, rebuildFlags)

			cmder.cfg, err = config.Load(v)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.tomography, "tomography", "t", "lumbar_disc", "Tomography type to rebuild")
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageProvider, &cmder.storageProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagDataDir, &cmder.dataDir)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorProvider, &cmder.vectorProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorTarget, &cmder.vectorTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagExtractorTarget, &cmder.extractorTarget)

	return cmd
}

func (c *rebuildCommander) run(cmd *cobra.Command) error {
	log := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))
	ctx := cmd.Context()

	a, err := app.New(ctx, c.cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.Pipeline(c.tomography)
	if err != nil {
		return err
	}

	result, err := p.Rebuild(ctx)
	if err != nil {
		return err
	}

	fmt.Println(result.Summary())
	return nil
}
