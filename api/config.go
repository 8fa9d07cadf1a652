// Package api provides the HTTP API server for ingesting conversation turns
// and querying the memory layer.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8321")
	ListenAddr string
}
