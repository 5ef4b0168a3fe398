package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes viper with the configuration file and environment
// variables. If configFile is empty, it searches for mcpbridge.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself, which viper's SetConfigName would
// otherwise match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("mcpbridge")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MCPBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	bindNestedEnvKeys()
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{".", filepath.Join(home, ".mcpbridge")}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "mcpbridge"))
		}
	} else {
		paths = append(paths, "/etc/mcpbridge")
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "mcpbridge"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

func bindNestedEnvKeys() {
	_ = viper.BindEnv("listener")
	_ = viper.BindEnv("session_timeout_ms")
	_ = viper.BindEnv("batch_timeout_ms")
	_ = viper.BindEnv("request_timeout_ms")
	_ = viper.BindEnv("max_sessions")
	_ = viper.BindEnv("max_restart_attempts")
	_ = viper.BindEnv("restart_delay_ms")
	_ = viper.BindEnv("process_start_timeout_ms")
	_ = viper.BindEnv("cors.allowed_origins")
	_ = viper.BindEnv("cors.allow_credentials")
	_ = viper.BindEnv("auth.enabled")
	_ = viper.BindEnv("auth.tokens")
	_ = viper.BindEnv("auth.redis_dsn")
}

// Load reads the configuration file (if any), applies environment
// overrides and defaults, validates, and returns the Config.
func Load() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded, or empty if none was found (env-vars-only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
