// Package api provides the HTTP API server for broadcasting requests and
// inspecting the negotiations they start.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// DisableMCP leaves /mcp unmounted.
	DisableMCP bool
}
