package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands.
type Flag struct {
	// Name is the long flag name (e.g. "sqlite").
	Name string

	// Shorthand is the one-letter short flag. Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to.
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of registry keys to Flag definitions.
type FlagSet map[string]Flag

// Flag registry keys.
const (
	FlagSQLite          = "sqlite"
	FlagStorageProvider = "storage-provider"
	FlagPostgresDSN     = "postgres-dsn"
	FlagVectorProvider  = "vector-store-provider"
	FlagVectorTarget    = "vector-store-target"
	FlagDataDir         = "data-dir"
	FlagExtractorTarget = "extractor-target"
	FlagAPIListen       = "api-listen"
	FlagLogFile         = "log-file"
)

// Flags is the shared flag registry for dicomdex commands.
var Flags = FlagSet{
	FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "storage.sqlite_path",
		Description: "Path to the shared metadata SQLite database",
	},
	FlagStorageProvider: {
		Name:        "storage-provider",
		ViperKey:    "storage.provider",
		Description: "Metadata store backend (sqlite, postgres)",
	},
	FlagPostgresDSN: {
		Name:        "postgres-dsn",
		ViperKey:    "storage.postgres_dsn",
		Description: "PostgreSQL connection string for the metadata store",
	},
	FlagDataDir: {
		Name:        "data-dir",
		ViperKey:    "storage.data_dir",
		Description: "Root directory for stored series files",
	},
	FlagVectorProvider: {
		Name:        "vector-store-provider",
		ViperKey:    "vector_store.provider",
		Description: "Embedding index backend (sqlitevec, qdrant)",
	},
	FlagVectorTarget: {
		Name:        "vector-store-target",
		ViperKey:    "vector_store.target",
		Description: "Remote embedding index address (host:port)",
	},
	FlagExtractorTarget: {
		Name:        "extractor-target",
		ViperKey:    "extractor.target",
		Description: "Feature extraction service base URL",
	},
	FlagAPIListen: {
		Name:        "api-listen",
		Shorthand:   "l",
		ViperKey:    "api.listen",
		Description: "API server listen address",
	},
	FlagLogFile: {
		Name:        "log-file",
		ViperKey:    "api.log_file",
		Description: "File receiving JSON logs alongside console output",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using
// definitions from the given FlagSet. Call this in PreRunE after InitViper to
// connect flags to the viper precedence chain (flag > env > config file >
// default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from
// NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}
