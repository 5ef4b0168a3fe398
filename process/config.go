// Package process supervises locally-spawned JSON-RPC subprocesses: it
// spawns them without shell interpretation, frames their stdout/stderr into
// lines, restarts them within a bounded budget on crash, and exposes an
// event stream the proxy core correlates against.
package process

import "time"

// ServerConfig is the static description of one MCP subprocess.
type ServerConfig struct {
	// Name is the logical server name, used to derive the default HTTP
	// endpoint (/<name>).
	Name string
	// Command is the executable path or name (resolved via PATH).
	Command string
	// Args is the argument vector, passed to the child as-is: no shell
	// interpretation.
	Args []string
	// Env overlays the parent process environment; entries here win.
	Env map[string]string
	// Dir is the child's working directory; empty means inherit.
	Dir string
	// Endpoint is the HTTP path for this server; empty defaults to /<name>.
	Endpoint string
}

func (c ServerConfig) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return "/" + c.Name
}

// Endpoint returns the configured or default HTTP path for this server.
func (c ServerConfig) Endpoint() string { return c.endpoint() }

// Options bounds the supervisor's restart and spawn-confirmation behavior.
type Options struct {
	// MaxRestartAttempts bounds restart churn for a single handle.
	MaxRestartAttempts int
	// RestartDelay is waited before each restart attempt.
	RestartDelay time.Duration
	// StartConfirmWindow is how long Start waits to confirm the child
	// didn't immediately exit or fail.
	StartConfirmWindow time.Duration
}

// DefaultOptions matches the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxRestartAttempts: 3,
		RestartDelay:       1000 * time.Millisecond,
		StartConfirmWindow: 500 * time.Millisecond,
	}
}
