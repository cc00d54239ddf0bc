// Package config loads gateway settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every runtime setting. All values come from environment
// variables with sensible defaults, so the binary runs with zero flags.
type Config struct {
	Host string
	Port int

	AgentCLIPath      string
	MCPConfigPath     string
	UsePTY            bool
	TotalTimeout      time.Duration
	InactivityTimeout time.Duration
	KillTimeout       time.Duration

	WorkspaceBase string

	APIKey  string
	APIKeys []string

	LogLevel string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("agent_cli_path", "claude")
	v.SetDefault("mcp_config_path", "")
	v.SetDefault("agent_use_pty", false)
	v.SetDefault("agent_total_timeout_ms", 3600000)
	v.SetDefault("agent_inactivity_timeout_ms", 300000)
	v.SetDefault("process_kill_timeout_ms", 5000)
	v.SetDefault("workspace_base_path", ".")
	v.SetDefault("api_key", "")
	v.SetDefault("api_keys", "")
	v.SetDefault("log_level", "info")
	v.AutomaticEnv()

	cfg := &Config{
		Host:              v.GetString("host"),
		Port:              v.GetInt("port"),
		AgentCLIPath:      v.GetString("agent_cli_path"),
		MCPConfigPath:     v.GetString("mcp_config_path"),
		UsePTY:            v.GetBool("agent_use_pty"),
		TotalTimeout:      time.Duration(v.GetInt64("agent_total_timeout_ms")) * time.Millisecond,
		InactivityTimeout: time.Duration(v.GetInt64("agent_inactivity_timeout_ms")) * time.Millisecond,
		KillTimeout:       time.Duration(v.GetInt64("process_kill_timeout_ms")) * time.Millisecond,
		WorkspaceBase:     v.GetString("workspace_base_path"),
		APIKey:            v.GetString("api_key"),
		APIKeys:           splitKeys(v.GetString("api_keys")),
		LogLevel:          v.GetString("log_level"),
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.TotalTimeout <= 0 || cfg.InactivityTimeout <= 0 || cfg.KillTimeout <= 0 {
		return nil, fmt.Errorf("timeouts must be positive")
	}
	return cfg, nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ValidAPIKeys merges the single-key and list-form settings.
func (c *Config) ValidAPIKeys() []string {
	keys := make([]string, 0, len(c.APIKeys)+1)
	if c.APIKey != "" {
		keys = append(keys, c.APIKey)
	}
	for _, k := range c.APIKeys {
		if k != "" && k != c.APIKey {
			keys = append(keys, k)
		}
	}
	return keys
}

// AuthEnabled reports whether bearer-token auth is configured.
func (c *Config) AuthEnabled() bool {
	return len(c.ValidAPIKeys()) > 0
}

func splitKeys(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}
