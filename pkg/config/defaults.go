package config

const (
	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

// NewDefaultConfig returns a fully-populated Config with sane defaults,
// including the lumbar disc tomography type the system ships with.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider:   "sqlite",
			SQLitePath: "dicomdex.db",
			DataDir:    "data",
		},
		VectorStore: VectorStoreConfig{
			Provider: "sqlitevec",
		},
		Extractor: ExtractorConfig{
			Target: "http://localhost:8080",
		},
		EventStream: EventStreamConfig{
			Provider: "nop",
			Topic:    "dicomdex.series",
		},
		API: APIConfig{
			Listen: ":5231",
		},
		Tomography: map[string]TomographyConfig{
			"lumbar_disc": {
				IndexPath:       "lumbar_disc.index.db",
				Dimensions:      128,
				Model:           "lumbar_disc",
				FrameCount:      4,
				DefaultProtocol: "lumbar disc tomography",
			},
		},
	}
}
