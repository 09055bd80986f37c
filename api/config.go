// Package api provides the HTTP server for querying the series index by
// uploaded archive and for downloading stored series.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":5231")
	ListenAddr string

	// DataDir is the root under which stored series files live; path records
	// resolve relative to it.
	DataDir string
}
