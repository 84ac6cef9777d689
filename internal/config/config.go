// ABOUTME: Configuration loading and parsing for yotei
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete yotei configuration, shared by the relay
// and the agent binaries.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Relay     RelayConfig     `yaml:"relay"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Agents    AgentsConfig    `yaml:"agents"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds the relay's listen address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RelayConfig holds the agent-side relay connection settings
type RelayConfig struct {
	URL string `yaml:"url"`

	HeartbeatInterval time.Duration `yaml:"-"`
	ReconnectDelay    time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
	ReconnectDelayRaw    string `yaml:"reconnect_delay"`
}

// AnthropicConfig holds the social intelligence model settings
type AnthropicConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

// AgentsConfig holds coordination timing configuration
type AgentsConfig struct {
	ResponseTimeout time.Duration `yaml:"-"`
	PollInterval    time.Duration `yaml:"-"`

	ResponseTimeoutRaw string `yaml:"response_timeout"`
	PollIntervalRaw    string `yaml:"poll_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in values a minimal config file can omit.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8765"
	}
	if c.Database.Path == "" {
		c.Database.Path = "yotei.db"
	}
	if c.Relay.URL == "" {
		c.Relay.URL = "ws://localhost:8765"
	}
	if c.Relay.HeartbeatInterval == 0 {
		c.Relay.HeartbeatInterval = 30 * time.Second
	}
	if c.Relay.ReconnectDelay == 0 {
		c.Relay.ReconnectDelay = 5 * time.Second
	}
	if c.Agents.ResponseTimeout == 0 {
		c.Agents.ResponseTimeout = 5 * time.Minute
	}
	if c.Agents.PollInterval == 0 {
		c.Agents.PollInterval = time.Minute
	}
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = "claude-3-5-sonnet-20241022"
	}
	if c.Anthropic.Temperature == 0 {
		c.Anthropic.Temperature = 0.7
	}
	if c.Anthropic.MaxTokens == 0 {
		c.Anthropic.MaxTokens = 2048
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Agents.ResponseTimeout < time.Second {
		return fmt.Errorf("agents.response_timeout must be at least 1s")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Relay.HeartbeatIntervalRaw != "" {
		cfg.Relay.HeartbeatInterval, err = time.ParseDuration(cfg.Relay.HeartbeatIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_interval %q: %w", cfg.Relay.HeartbeatIntervalRaw, err)
		}
	}

	if cfg.Relay.ReconnectDelayRaw != "" {
		cfg.Relay.ReconnectDelay, err = time.ParseDuration(cfg.Relay.ReconnectDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing reconnect_delay %q: %w", cfg.Relay.ReconnectDelayRaw, err)
		}
	}

	if cfg.Agents.ResponseTimeoutRaw != "" {
		cfg.Agents.ResponseTimeout, err = time.ParseDuration(cfg.Agents.ResponseTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing response_timeout %q: %w", cfg.Agents.ResponseTimeoutRaw, err)
		}
	}

	if cfg.Agents.PollIntervalRaw != "" {
		cfg.Agents.PollInterval, err = time.ParseDuration(cfg.Agents.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.Agents.PollIntervalRaw, err)
		}
	}

	return nil
}
