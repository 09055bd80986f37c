// Package ingestcmder provides the ingest pipeline cobra command.
package ingestcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dicomdex/dicomdex/pkg/app"
	"github.com/dicomdex/dicomdex/pkg/config"
	"github.com/dicomdex/dicomdex/pkg/logger"
)

type ingestCommander struct {
	tomography string
	sourceDir  string

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

var ingestFlags = []string{
	config.FlagSQLite,
	config.FlagStorageProvider,
	config.FlagPostgresDSN,
	config.FlagDataDir,
	config.FlagVectorProvider,
	config.FlagVectorTarget,
	config.FlagExtractorTarget,
}

const ingestLongDesc string = `Ingest a directory of DICOM series files.

Scans the directory, groups files by series UID, persists descriptions and
file paths, extracts one embedding per new series, and appends the embeddings
to the type's index in a single batch. Series already present are skipped,
never re-embedded.

Example:
  dicomdex ingest ./incoming --tomography lumbar_disc`

const ingestShortDesc string = "Ingest a directory of series files"

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest <source-dir>",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, ingestFlags)

			cmder.cfg, err = config.Load(v)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.sourceDir = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.tomography, "tomography", "t", "lumbar_disc", "Tomography type to ingest as")
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageProvider, &cmder.storageProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagDataDir, &cmder.dataDir)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorProvider, &cmder.vectorProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorTarget, &cmder.vectorTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagExtractorTarget, &cmder.extractorTarget)

	return cmd
}

func (c *ingestCommander) run(cmd *cobra.Command) error {
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

	result, err := p.Ingest(ctx, c.sourceDir)
	if err != nil {
		return err
	}

	fmt.Println(result.Summary())
	return nil
}
