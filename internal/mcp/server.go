// Package mcp implements a read-only MCP (Model Context Protocol)
// server over a vault. The model never receives plaintext secrets: tools
// expose names, existence and masked previews only.
package mcp

import (
	"context"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/securestore/securestore/pkg/vault"
)

// passwordEnv is the environment variable holding the vault password for
// headless operation.
const passwordEnv = "SECURESTORE_PASSWORD"

// Server exposes a loaded store over MCP stdio transport.
type Server struct {
	server *mcp.Server
	store  *vault.Store
}

// ServerOptions configures NewServer.
type ServerOptions struct {
	// StorePath is the vault file to serve.
	StorePath string

	// KeyFile unlocks the store with a key file instead of a password.
	KeyFile string

	// Password unlocks the store. If empty, the SECURESTORE_PASSWORD
	// environment variable is consulted (and cleared after reading).
	Password string

	// Version is reported in the MCP handshake.
	Version string
}

// NewServer loads and unlocks the store and registers the tools.
func NewServer(opts *ServerOptions) (*Server, error) {
	if opts == nil || opts.StorePath == "" {
		return nil, fmt.Errorf("mcp: store path is required")
	}

	store, err := vault.LoadFile(opts.StorePath, vault.WithPolicy(vault.PolicyUpgrade))
	if err != nil {
		return nil, fmt.Errorf("mcp: failed to load store: %w", err)
	}

	switch {
	case opts.KeyFile != "":
		err = store.LoadKeyFromFile(opts.KeyFile)
	default:
		password := opts.Password
		if password == "" {
			password = os.Getenv(passwordEnv)
			// Clear the variable after reading so child processes never
			// inherit it.
			os.Unsetenv(passwordEnv)
		}
		if password == "" {
			return nil, fmt.Errorf("mcp: no password provided: set %s", passwordEnv)
		}
		err = store.LoadKeyFromPassword(password)
	}
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("mcp: failed to unlock store: %w", err)
	}

	s := &Server{
		server: mcp.NewServer(
			&mcp.Implementation{
				Name:    "securestore",
				Version: opts.Version,
			},
			nil,
		),
		store: store,
	}
	s.registerTools()
	return s, nil
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "secret_list",
		Description: "List all secret names in the store. Does NOT return secret values.",
	}, s.handleSecretList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "secret_exists",
		Description: "Check whether a secret name exists. Does NOT return the secret value.",
	}, s.handleSecretExists)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "secret_get_masked",
		Description: "Get a masked preview of a secret value (e.g. '*****WXYZ') for verifying its format without exposing it.",
	}, s.handleSecretGetMasked)
}

// Run starts the MCP server on stdio transport.
func (s *Server) Run(ctx context.Context) error {
	defer s.store.Close()
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close closes the underlying store.
func (s *Server) Close() error {
	return s.store.Close()
}
