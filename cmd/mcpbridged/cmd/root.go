// Package cmd provides the CLI commands for mcpbridged.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/viant/jsonrpc/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mcpbridged",
	Short: "mcpbridged - MCP Streamable HTTP bridge",
	Long: `mcpbridged fronts one or more locally-spawned MCP servers speaking the
stdio transport and exposes them over the Streamable HTTP transport:
JSON-RPC over POST, optional SSE upgrade, and server-initiated messages
delivered over a GET-attached event stream.

Configuration is loaded from mcpbridge.yaml in the current directory,
$HOME/.mcpbridge/, or /etc/mcpbridge/. Environment variables override
config values with the MCPBRIDGE_ prefix, e.g. MCPBRIDGE_LISTENER=:9090.

Commands:
  start       Start the bridge
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcpbridge.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
