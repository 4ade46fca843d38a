package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mcp-gateway",
	Short: "Gateway and multiplexer for the Model Context Protocol",
	Long: `mcp-gateway fronts a fleet of locally-spawned MCP child processes and
re-exposes their aggregated tool surface through a REST/OpenAPI facade and a
native MCP Streamable-HTTP transport endpoint.`,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
