// Package config defines the dicomdex configuration surface and its loading
// rules. Values come from a TOML file, DICOMDEX_-prefixed environment
// variables, and bound CLI flags, in ascending precedence.
package config

import "fmt"

// Config is the root configuration.
type Config struct {
	Version     int                         `mapstructure:"version"`
	Storage     StorageConfig               `mapstructure:"storage"`
	VectorStore VectorStoreConfig           `mapstructure:"vector_store"`
	Extractor   ExtractorConfig             `mapstructure:"extractor"`
	EventStream EventStreamConfig           `mapstructure:"eventstream"`
	API         APIConfig                   `mapstructure:"api"`
	Tomography  map[string]TomographyConfig `mapstructure:"tomography"`
}

// StorageConfig selects and configures the metadata store backend.
type StorageConfig struct {
	// Provider is "sqlite" or "postgres".
	Provider string `mapstructure:"provider"`

	// SQLitePath is the shared metadata database file (sqlite provider).
	SQLitePath string `mapstructure:"sqlite_path"`

	// PostgresDSN is the connection string (postgres provider).
	PostgresDSN string `mapstructure:"postgres_dsn"`

	// DataDir is the root directory for stored series files; path records
	// resolve relative to it.
	DataDir string `mapstructure:"data_dir"`
}

// VectorStoreConfig selects and configures the embedding index backend.
type VectorStoreConfig struct {
	// Provider is "sqlitevec" or "qdrant".
	Provider string `mapstructure:"provider"`

	// Target is the remote host:port (qdrant provider).
	Target string `mapstructure:"target"`
}

// ExtractorConfig points at the feature extraction inference service.
type ExtractorConfig struct {
	// Target is the inference service base URL.
	Target string `mapstructure:"target"`
}

// EventStreamConfig selects the lifecycle event publisher.
type EventStreamConfig struct {
	// Provider is "nop" or "kafka".
	Provider string `mapstructure:"provider"`

	// Brokers is the kafka broker list (kafka provider).
	Brokers []string `mapstructure:"brokers"`

	// Topic is the kafka topic for series lifecycle events.
	Topic string `mapstructure:"topic"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	// Listen is the address to listen on (e.g., ":5231").
	Listen string `mapstructure:"listen"`

	// LogFile, when set, receives JSON logs in addition to the pretty
	// console output.
	LogFile string `mapstructure:"log_file"`
}

// TomographyConfig is the required per-type configuration. No pipeline may
// run for a type until all four fields are set.
type TomographyConfig struct {
	// IndexPath is the embedding index file for this type (sqlitevec).
	IndexPath string `mapstructure:"index_path"`

	// Dimensions is the embedding length for this type.
	Dimensions uint `mapstructure:"dimensions"`

	// Model names the inference model artifact for this type.
	Model string `mapstructure:"model"`

	// FrameCount is the fixed number of frames a series of this type holds.
	FrameCount int `mapstructure:"frame_count"`

	// DefaultProtocol fills ProtocolName when the tag is absent.
	DefaultProtocol string `mapstructure:"default_protocol"`
}

// TomographyType looks up and validates the configuration for a tomography
// type. Unknown types are rejected before any store is touched.
func (c *Config) TomographyType(name string) (TomographyConfig, error) {
	t, ok := c.Tomography[name]
	if !ok {
		return TomographyConfig{}, fmt.Errorf("unknown tomography type %q", name)
	}

	if t.IndexPath == "" {
		return TomographyConfig{}, fmt.Errorf("tomography type %q has no index_path configured", name)
	}
	if t.Dimensions == 0 {
		return TomographyConfig{}, fmt.Errorf("tomography type %q has no dimensions configured", name)
	}
	if t.Model == "" {
		return TomographyConfig{}, fmt.Errorf("tomography type %q has no model configured", name)
	}
	if t.FrameCount < 1 {
		return TomographyConfig{}, fmt.Errorf("tomography type %q has no frame_count configured", name)
	}

	return t, nil
}

// TomographyNames returns the configured type names.
func (c *Config) TomographyNames() []string {
	names := make([]string, 0, len(c.Tomography))
	for name := range c.Tomography {
		names = append(names, name)
	}
	return names
}
