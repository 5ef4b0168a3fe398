// Package config loads the bridge's YAML configuration, overridable by
// MCPBRIDGE_-prefixed environment variables, via viper.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level bridge configuration.
type Config struct {
	// Listener is the host:port the HTTP front-end binds to.
	Listener string `yaml:"listener" mapstructure:"listener"`

	// SessionTimeoutMS is the idle timeout before a session is swept, in
	// milliseconds. Defaults to 3_600_000 (1h) per spec §6.
	SessionTimeoutMS int `yaml:"session_timeout_ms" mapstructure:"session_timeout_ms"`
	// BatchTimeoutMS bounds a batch request's total processing time.
	// Defaults to 5_000 per spec §6.
	BatchTimeoutMS int `yaml:"batch_timeout_ms" mapstructure:"batch_timeout_ms"`
	// RequestTimeoutMS bounds a single correlated request/response wait.
	// Defaults to 30_000 per spec §4.4.
	RequestTimeoutMS int `yaml:"request_timeout_ms" mapstructure:"request_timeout_ms"`

	// MaxSessions bounds live sessions. Defaults to 100.
	MaxSessions int `yaml:"max_sessions" mapstructure:"max_sessions"`
	// MaxRestartAttempts bounds subprocess restart churn. Defaults to 3.
	MaxRestartAttempts int `yaml:"max_restart_attempts" mapstructure:"max_restart_attempts"`
	// RestartDelayMS is waited before each restart attempt. Defaults to 1000.
	RestartDelayMS int `yaml:"restart_delay_ms" mapstructure:"restart_delay_ms"`
	// ProcessStartTimeoutMS bounds spawn-confirmation. Defaults to 500.
	ProcessStartTimeoutMS int `yaml:"process_start_timeout_ms" mapstructure:"process_start_timeout_ms"`

	CORS CORSConfig `yaml:"cors" mapstructure:"cors"`
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Servers lists the MCP subprocesses this bridge fronts. At least one
	// entry is required.
	Servers []ServerConfig `yaml:"servers" mapstructure:"servers" validate:"required,min=1,dive"`
}

// CORSConfig mirrors httpapi.CORSConfig in a config-file-friendly shape.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowCredentials bool     `yaml:"allow_credentials" mapstructure:"allow_credentials"`
}

// AuthConfig describes the optional bearer-token allow-list.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled" mapstructure:"enabled"`
	Tokens  []string `yaml:"tokens" mapstructure:"tokens"`
	// RedisDSN, if set, backs the allow-list with auth.RedisStore instead
	// of an in-memory set, for deployments with more than one instance.
	RedisDSN string `yaml:"redis_dsn" mapstructure:"redis_dsn"`
}

// ServerConfig describes one subprocess the bridge supervises, mirroring
// process.ServerConfig in a config-file-friendly shape.
type ServerConfig struct {
	Name     string            `yaml:"name" mapstructure:"name" validate:"required"`
	Command  string            `yaml:"command" mapstructure:"command" validate:"required"`
	Args     []string          `yaml:"args" mapstructure:"args"`
	Env      map[string]string `yaml:"env" mapstructure:"env"`
	Dir      string            `yaml:"dir" mapstructure:"dir"`
	Endpoint string            `yaml:"endpoint" mapstructure:"endpoint"`
}

// SetDefaults applies the spec's documented defaults to unset fields.
func (c *Config) SetDefaults() {
	if c.Listener == "" {
		c.Listener = "127.0.0.1:8080"
	}
	if c.SessionTimeoutMS == 0 {
		c.SessionTimeoutMS = 3_600_000
	}
	if c.BatchTimeoutMS == 0 {
		c.BatchTimeoutMS = 5_000
	}
	if c.RequestTimeoutMS == 0 {
		c.RequestTimeoutMS = 30_000
	}
	if c.MaxSessions == 0 {
		c.MaxSessions = 100
	}
	if c.MaxRestartAttempts == 0 {
		c.MaxRestartAttempts = 3
	}
	if c.RestartDelayMS == 0 {
		c.RestartDelayMS = 1000
	}
	if c.ProcessStartTimeoutMS == 0 {
		c.ProcessStartTimeoutMS = 500
	}
}

// Validate reports a descriptive error if the configuration cannot start a
// bridge: at least one server is required, per spec §6.
func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("config: at least one server must be configured")
	}
	seen := make(map[string]struct{}, len(c.Servers))
	for _, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("config: server entry missing name")
		}
		if s.Command == "" {
			return fmt.Errorf("config: server %q missing command", s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("config: duplicate server name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	if c.Auth.Enabled && len(c.Auth.Tokens) == 0 && c.Auth.RedisDSN == "" {
		return fmt.Errorf("config: auth.enabled requires tokens or a redis_dsn")
	}
	return nil
}

func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMS) * time.Millisecond
}

func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutMS) * time.Millisecond
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

func (c *Config) RestartDelay() time.Duration {
	return time.Duration(c.RestartDelayMS) * time.Millisecond
}

func (c *Config) ProcessStartTimeout() time.Duration {
	return time.Duration(c.ProcessStartTimeoutMS) * time.Millisecond
}
