package api

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/dicomdex/dicomdex/pkg/config"
	"github.com/dicomdex/dicomdex/pkg/dicom"
	"github.com/dicomdex/dicomdex/pkg/features"
	"github.com/dicomdex/dicomdex/pkg/query"
)

// Server is the HTTP API server. It is strictly read-only against the
// stores: uploads are transient query inputs, never ingested.
type Server struct {
	config     Config
	types      *config.Config
	queries    *query.Service
	reader     dicom.TagReader
	extractors map[string]features.Extractor
	logger     *slog.Logger
	app        *fiber.App
}

// NewServer creates a new API server. The query service and extractors are
// injected to allow sharing with the pipeline commands.
func NewServer(
	cfg Config,
	types *config.Config,
	queries *query.Service,
	reader dicom.TagReader,
	extractors map[string]features.Extractor,
	logger *slog.Logger,
) (*Server, error) {
	if types == nil {
		return nil, fmt.Errorf("tomography configuration is required")
	}
	if queries == nil {
		return nil, fmt.Errorf("query service is required")
	}
	if reader == nil {
		return nil, fmt.Errorf("tag reader is required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             64 * 1024 * 1024,
	})

	s := &Server{
		config:     cfg,
		types:      types,
		queries:    queries,
		reader:     reader,
		extractors: extractors,
		logger:     logger,
		app:        app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/upload_zip_file", s.handleUploadZip)
	app.Get("/download_dicom_zip", s.handleDownloadZip)

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
