// Package servecmder provides the API server cobra command.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dicomdex/dicomdex/api"
	"github.com/dicomdex/dicomdex/pkg/app"
	"github.com/dicomdex/dicomdex/pkg/config"
	"github.com/dicomdex/dicomdex/pkg/dicom"
	"github.com/dicomdex/dicomdex/pkg/features"
	"github.com/dicomdex/dicomdex/pkg/logger"
)

type serveCommander struct {
	listen string

	sqlitePath      string
	storageProvider string
	postgresDSN     string
	dataDir         string
	vectorProvider  string
	vectorTarget    string
	extractorTarget string
	logFile         string

	debug bool
	cfg   *config.Config
}

var serveFlags = []string{
	config.FlagAPIListen,
	config.FlagSQLite,
	config.FlagStorageProvider,
	config.FlagPostgresDSN,
	config.FlagDataDir,
	config.FlagVectorProvider,
	config.FlagVectorTarget,
	config.FlagExtractorTarget,
	config.FlagLogFile,
}

const serveLongDesc string = `Run the dicomdex HTTP API server.

Serves similarity queries over uploaded series archives and downloads of
stored series. The server is read-only against the stores; ingestion,
deletion, and rebuilds run through their own commands.`

const serveShortDesc string = "Run the dicomdex API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)

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

	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageProvider, &cmder.storageProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagDataDir, &cmder.dataDir)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorProvider, &cmder.vectorProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorTarget, &cmder.vectorTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagExtractorTarget, &cmder.extractorTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagLogFile, &cmder.logFile)

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	log := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))
	if c.cfg.API.LogFile != "" {
		f, err := os.OpenFile(c.cfg.API.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file %s: %w", c.cfg.API.LogFile, err)
		}
		defer f.Close()
		log = logger.Multi(
			log,
			logger.New(logger.WithDebug(c.debug), logger.WithJSON(true), logger.WithWriter(f)),
		)
	}
	ctx := cmd.Context()

	a, err := app.New(ctx, c.cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	queries, err := a.QueryService()
	if err != nil {
		return err
	}

	// One extractor handle per configured type; the serving side is stateful
	// per model.
	extractors := make(map[string]features.Extractor)
	for _, name := range c.cfg.TomographyNames() {
		extractor, err := a.Extractor(name)
		if err != nil {
			return fmt.Errorf("wiring extractor for %s: %w", name, err)
		}
		defer extractor.Close()
		extractors[name] = extractor
	}

	server, err := api.NewServer(
		api.Config{
			ListenAddr: c.cfg.API.Listen,
			DataDir:    c.cfg.Storage.DataDir,
		},
		c.cfg,
		queries,
		dicom.NewReader(),
		extractors,
		log,
	)
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}
