// Package removecmder provides the series deletion cobra command.
package removecmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dicomdex/dicomdex/pkg/app"
	"github.com/dicomdex/dicomdex/pkg/config"
	"github.com/dicomdex/dicomdex/pkg/logger"
)

type removeCommander struct {
	tomography string
	seriesUIDs []string

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

var removeFlags = []string{
	config.FlagSQLite,
	config.FlagStorageProvider,
	config.FlagPostgresDSN,
	config.FlagDataDir,
	config.FlagVectorProvider,
	config.FlagVectorTarget,
	config.FlagExtractorTarget,
}

const removeLongDesc string = `Delete series metadata by series UID.

Removes each series' path records and description in one transaction per
series. The embedding index is left untouched: stale vectors stay behind and
are filtered at query time until the next rebuild. Schedule a rebuild if
search must stop surfacing the deleted series before then.

Example:
  dicomdex remove 1.2.840.10008.123 1.2.840.10008.456`

const removeShortDesc string = "Delete series metadata"

func NewRemoveCmd() *cobra.Command {
	cmder := &removeCommander{}

	cmd := &cobra.Command{
		Use:   "remove <series-uid> [series-uid...]",
		Short: removeShortDesc,
		Long:  removeLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, removeFlags)

			cmder.cfg, err = config.Load(v)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.seriesUIDs = args

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.tomography, "tomography", "t", "lumbar_disc", "Tomography type the series belong to")
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageProvider, &cmder.storageProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagDataDir, &cmder.dataDir)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorProvider, &cmder.vectorProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorTarget, &cmder.vectorTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagExtractorTarget, &cmder.extractorTarget)

	return cmd
}

func (c *removeCommander) run(cmd *cobra.Command) error {
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

	result, err := p.Delete(ctx, c.seriesUIDs)
	if err != nil {
		return err
	}

	fmt.Println(result.Summary())
	return nil
}
