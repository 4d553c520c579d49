package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/securestore/securestore/internal/mcp"
)

// mcpServerCmd runs the read-only MCP server on stdio
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Runs a read-only MCP server over the store",
	Long: `Runs an MCP (Model Context Protocol) server over stdio.

The server exposes secret names, existence checks and masked previews;
plaintext values are never sent to the client. The store is unlocked
with --keyfile, --password, or the SECURESTORE_PASSWORD environment
variable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := mcp.NewServer(&mcp.ServerOptions{
			StorePath: storePath,
			KeyFile:   keyFilePath,
			Password:  passwordFlag,
			Version:   version,
		})
		if err != nil {
			return err
		}
		defer server.Close()

		fmt.Fprintf(os.Stderr, "securestore MCP server serving %s on stdio\n", storePath)
		return server.Run(context.Background())
	},
}
