// Command mcpbridged fronts locally-spawned MCP stdio servers with a
// Streamable HTTP transport.
package main

import "github.com/viant/jsonrpc/cmd/mcpbridged/cmd"

func main() {
	cmd.Execute()
}
