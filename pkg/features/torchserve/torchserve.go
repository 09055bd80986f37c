// Package torchserve implements the features.Extractor contract against a
// TorchServe-style HTTP inference endpoint.
package torchserve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dicomdex/dicomdex/pkg/dicom"
	"github.com/dicomdex/dicomdex/pkg/features"
)

// DefaultBaseURL is the default inference service URL.
const DefaultBaseURL = "http://localhost:8080"

// Extractor posts a series' frames to an inference endpoint and decodes the
// returned embedding.
type Extractor struct {
	baseURL    string
	model      string
	dimensions uint
	httpClient *http.Client
}

// Config holds configuration for the TorchServe extractor.
type Config struct {
	// BaseURL is the inference service URL. Defaults to DefaultBaseURL.
	BaseURL string

	// Model is the served model name; requests go to
	// {BaseURL}/predictions/{Model}.
	Model string

	// Dimensions is the expected embedding length. Responses of any other
	// length are rejected.
	Dimensions uint
}

// NewExtractor creates an HTTP-backed feature extractor.
func NewExtractor(cfg Config) (*Extractor, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if cfg.Dimensions == 0 {
		return nil, fmt.Errorf("embedding dimensions cannot be 0, must be configured")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Extractor{
		baseURL:    baseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

// Extract uploads the series' frames as one multipart request and returns
// the decoded embedding.
func (e *Extractor) Extract(ctx context.Context, seriesDir string) ([]float32, error) {
	files, err := dicom.ListFiles(seriesDir)
	if err != nil {
		return nil, fmt.Errorf("%w: listing frames: %v", features.ErrExtraction, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no frames in %s", features.ErrExtraction, seriesDir)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, file := range files {
		if err := appendFrame(writer, file); err != nil {
			return nil, fmt.Errorf("%w: %v", features.ErrExtraction, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: closing multipart body: %v", features.ErrExtraction, err)
	}

	url := fmt.Sprintf("%s/predictions/%s", e.baseURL, e.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", features.ErrExtraction, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sending request: %v", features.ErrExtraction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: inference service returned status %d: %s",
			features.ErrExtraction, resp.StatusCode, string(detail))
	}

	var embedding []float32
	if err := json.NewDecoder(resp.Body).Decode(&embedding); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", features.ErrExtraction, err)
	}

	if uint(len(embedding)) != e.dimensions {
		return nil, fmt.Errorf("%w: got %d-dimensional embedding, want %d",
			features.ErrExtraction, len(embedding), e.dimensions)
	}

	return embedding, nil
}

// appendFrame copies one frame file into the multipart body.
func appendFrame(writer *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening frame %s: %w", path, err)
	}
	defer f.Close()

	part, err := writer.CreateFormFile("frames", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("creating form part for %s: %w", path, err)
	}

	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copying frame %s: %w", path, err)
	}

	return nil
}

// Close releases resources held by the extractor.
func (e *Extractor) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

// Ensure Extractor implements features.Extractor.
var _ features.Extractor = (*Extractor)(nil)
