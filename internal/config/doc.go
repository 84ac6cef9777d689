// Package config handles configuration loading for yotei.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from YOTEI_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/yotei/yotei.yaml
//  3. ~/.config/yotei/yotei.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	anthropic:
//	  api_key: "${ANTHROPIC_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	relay:
//	  heartbeat_interval: "30s"
//	  reconnect_delay: "5s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Relay server:
//
//	server:
//	  http_addr: ":8765"
//
// Database:
//
//	database:
//	  path: "~/.local/share/yotei/yotei.db"
//
// Agent-side relay connection:
//
//	relay:
//	  url: "ws://localhost:8765"
//	  heartbeat_interval: "30s"
//	  reconnect_delay: "5s"
//
// Social intelligence model:
//
//	anthropic:
//	  api_key: "${ANTHROPIC_API_KEY}"
//	  model: "claude-3-5-sonnet-20241022"
//	  temperature: 0.7
//	  max_tokens: 2048
//
// Coordination timing:
//
//	agents:
//	  response_timeout: "5m"
//	  poll_interval: "1m"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Listen address and database path presence
//   - Duration format validity
//   - Response timeout lower bound (1s)
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/yotei/yotei.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
