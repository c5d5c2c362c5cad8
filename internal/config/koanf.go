// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/quayside/config.yaml",
	"/etc/quayside/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			WSPath:          "/ws",
			ShutdownTimeout: 15 * time.Second,
			Environment:     "development",
		},
		Security: SecurityConfig{
			SessionTimeout:   24 * time.Hour,
			CORSOrigins:      []string{"*"},
			HandshakeTimeout: 10 * time.Second,
			RateLimitReqs:    60,
			RateLimitWindow:  time.Minute,
		},
		Hub: HubConfig{
			WriteWait:             10 * time.Second,
			PongWait:              60 * time.Second,
			MaxMessageSize:        64 * 1024,
			SendBuffer:            256,
			EventsPerSecond:       20,
			EventsBurst:           40,
			MaxConnectionsPerUser: 0,
		},
		Agent: AgentConfig{
			URL:               "ws://127.0.0.1:8080/ws",
			BaseDelay:         3 * time.Second,
			Decay:             1.5,
			MaxDelay:          30 * time.Second,
			MaxAttempts:       10,
			HeartbeatInterval: 25 * time.Second,
			QueueRetention:    60 * time.Second,
			QueueMax:          500,
			SleepTick:         5 * time.Second,
			SleepGap:          60 * time.Second,
			HandshakeTimeout:  10 * time.Second,
		},
		Store: StoreConfig{
			Backend: "memory",
			Path:    "/data/quayside",
			Breaker: BreakerConfig{
				MaxRequests:         1,
				Interval:            time.Minute,
				Timeout:             30 * time.Second,
				ConsecutiveFailures: 5,
			},
		},
		Authz: AuthzConfig{
			Permissive: true,
			CacheTTL:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load reads defaults, the optional config file and the environment without
// validating. Callers pick Validate or ValidateAgent for their binary.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

// LoadWithKoanf loads and validates the hub configuration.
func LoadWithKoanf() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns CONFIG_PATH when it exists, else the first default
// path found, else "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	// Server
	"http_port":        "server.port",
	"http_host":        "server.host",
	"ws_path":          "server.ws_path",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",

	// Security
	"jwt_secret":          "security.jwt_secret",
	"session_timeout":     "security.session_timeout",
	"cors_origins":        "security.cors_origins",
	"handshake_timeout":   "security.handshake_timeout",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	// Hub
	"hub_write_wait":               "hub.write_wait",
	"hub_pong_wait":                "hub.pong_wait",
	"hub_max_message_size":         "hub.max_message_size",
	"hub_send_buffer":              "hub.send_buffer",
	"hub_events_per_second":        "hub.events_per_second",
	"hub_events_burst":             "hub.events_burst",
	"hub_max_connections_per_user": "hub.max_connections_per_user",

	// Agent
	"agent_url":                "agent.url",
	"agent_token":              "agent.token",
	"agent_base_delay":         "agent.base_delay",
	"agent_decay":              "agent.decay",
	"agent_max_delay":          "agent.max_delay",
	"agent_max_attempts":       "agent.max_attempts",
	"agent_heartbeat_interval": "agent.heartbeat_interval",
	"agent_queue_retention":    "agent.queue_retention",
	"agent_queue_max":          "agent.queue_max",
	"agent_sleep_tick":         "agent.sleep_tick",
	"agent_sleep_gap":          "agent.sleep_gap",
	"agent_handshake_timeout":  "agent.handshake_timeout",

	// Store
	"store_backend":                      "store.backend",
	"store_path":                         "store.path",
	"store_breaker_max_requests":         "store.breaker.max_requests",
	"store_breaker_interval":             "store.breaker.interval",
	"store_breaker_timeout":              "store.breaker.timeout",
	"store_breaker_consecutive_failures": "store.breaker.consecutive_failures",

	// Authz
	"authz_permissive":       "authz.permissive",
	"authz_room_model_path":  "authz.room_model_path",
	"authz_room_policy_path": "authz.room_policy_path",
	"authz_cache_ttl":        "authz.cache_ttl",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - JWT_SECRET -> security.jwt_secret
//   - HTTP_PORT -> server.port
//   - AGENT_BASE_DELAY -> agent.base_delay
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
