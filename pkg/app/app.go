// Package app assembles dicomdex components out of loaded configuration so
// the CLI commands share one wiring path for stores, indexes, extractors, and
// the event publisher.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dicomdex/dicomdex/pkg/config"
	"github.com/dicomdex/dicomdex/pkg/dicom"
	"github.com/dicomdex/dicomdex/pkg/eventstream"
	"github.com/dicomdex/dicomdex/pkg/eventstream/kafka"
	"github.com/dicomdex/dicomdex/pkg/eventstream/nop"
	"github.com/dicomdex/dicomdex/pkg/features"
	"github.com/dicomdex/dicomdex/pkg/features/torchserve"
	"github.com/dicomdex/dicomdex/pkg/metadata"
	"github.com/dicomdex/dicomdex/pkg/metadata/postgres"
	"github.com/dicomdex/dicomdex/pkg/metadata/sqlite"
	"github.com/dicomdex/dicomdex/pkg/pipeline"
	"github.com/dicomdex/dicomdex/pkg/query"
	"github.com/dicomdex/dicomdex/pkg/vector"
	vectorutils "github.com/dicomdex/dicomdex/pkg/vector/utils"
)

// App holds the long-lived components built from one configuration.
type App struct {
	Config *config.Config
	Store  metadata.Store
	Events eventstream.Publisher
	Logger *slog.Logger
}

// New builds the metadata store and event publisher selected by cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	events, err := newPublisher(cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &App{
		Config: cfg,
		Store:  store,
		Events: events,
		Logger: logger,
	}, nil
}

// Close releases the store and the event publisher.
func (a *App) Close() error {
	err := a.Store.Close()
	if closeErr := a.Events.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Pipeline wires a pipeline for the given tomography type, including its
// extractor and index opener.
func (a *App) Pipeline(tomographyType string) (*pipeline.Pipeline, error) {
	tomo, err := a.Config.TomographyType(tomographyType)
	if err != nil {
		return nil, err
	}

	extractor, err := a.Extractor(tomographyType)
	if err != nil {
		return nil, err
	}

	return pipeline.New(
		pipeline.Config{
			TomographyType:  tomographyType,
			DefaultProtocol: tomo.DefaultProtocol,
			DataDir:         a.Config.Storage.DataDir,
		},
		pipeline.Deps{
			Store:     a.Store,
			Extractor: extractor,
			TagReader: dicom.NewReader(),
			OpenIndex: a.pipelineIndexOpener(tomographyType, tomo),
			Events:    a.Events,
			Logger:    a.Logger,
		},
	)
}

// QueryService wires the read-only query service. Its index opener requires
// the index to already exist.
func (a *App) QueryService() (*query.Service, error) {
	opener := func(ctx context.Context, tomographyType string) (vector.Index, error) {
		tomo, err := a.Config.TomographyType(tomographyType)
		if err != nil {
			return nil, err
		}
		return a.openIndex(ctx, tomographyType, tomo, vectorutils.ModeExisting)
	}

	return query.NewService(a.Config, a.Store, opener, a.Logger)
}

// Extractor builds the feature extraction client for a tomography type.
func (a *App) Extractor(tomographyType string) (features.Extractor, error) {
	tomo, err := a.Config.TomographyType(tomographyType)
	if err != nil {
		return nil, err
	}

	return torchserve.NewExtractor(torchserve.Config{
		BaseURL:    a.Config.Extractor.Target,
		Model:      tomo.Model,
		Dimensions: tomo.Dimensions,
	})
}

func (a *App) pipelineIndexOpener(name string, tomo config.TomographyConfig) pipeline.OpenIndexFunc {
	return func(ctx context.Context, fresh bool) (vector.Index, error) {
		mode := vectorutils.ModeCreate
		if fresh {
			mode = vectorutils.ModeFresh
		}
		return a.openIndex(ctx, name, tomo, mode)
	}
}

func (a *App) openIndex(ctx context.Context, name string, tomo config.TomographyConfig, mode vectorutils.Mode) (vector.Index, error) {
	return vectorutils.NewIndex(ctx, &vectorutils.NewIndexOpts{
		Provider:   a.Config.VectorStore.Provider,
		Path:       tomo.IndexPath,
		Target:     a.Config.VectorStore.Target,
		Collection: name,
		Dimensions: tomo.Dimensions,
		Mode:       mode,
		Logger:     a.Logger,
	})
}

func newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (metadata.Store, error) {
	switch cfg.Storage.Provider {
	case "sqlite":
		return sqlite.NewStore(cfg.Storage.SQLitePath, logger)
	case "postgres":
		return postgres.NewStore(ctx, cfg.Storage.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Storage.Provider)
	}
}

func newPublisher(cfg *config.Config, logger *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.EventStream.Provider {
	case "", "nop":
		return nop.NewPublisher(), nil
	case "kafka":
		logger.Info("publishing series events to kafka",
			"brokers", cfg.EventStream.Brokers,
			"topic", cfg.EventStream.Topic,
		)
		return kafka.NewPublisher(kafka.Config{
			Brokers: cfg.EventStream.Brokers,
			Topic:   cfg.EventStream.Topic,
		})
	default:
		return nil, fmt.Errorf("unsupported eventstream provider: %s", cfg.EventStream.Provider)
	}
}
