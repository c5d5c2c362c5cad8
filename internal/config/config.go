// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds the configuration of both binaries. cmd/server reads every
// section except Agent; cmd/agent reads Agent and Logging.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Hub      HubConfig      `koanf:"hub"`
	Agent    AgentConfig    `koanf:"agent"`
	Store    StoreConfig    `koanf:"store"`
	Authz    AuthzConfig    `koanf:"authz"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	WSPath          string        `koanf:"ws_path"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // "development", "staging", "production"
}

// SecurityConfig holds token and HTTP hardening settings.
//
// Environment Variables:
//   - JWT_SECRET: HS256 signing secret (min 32 chars, required by the hub)
//   - SESSION_TIMEOUT: token lifetime for issued tokens (default: 24h)
//   - CORS_ORIGINS: comma-separated allowed origins (default: *)
//   - HANDSHAKE_TIMEOUT: WebSocket upgrade timeout (default: 10s)
//   - RATE_LIMIT_REQUESTS / RATE_LIMIT_WINDOW: per-IP limit on /ws
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	SessionTimeout    time.Duration `koanf:"session_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	HandshakeTimeout  time.Duration `koanf:"handshake_timeout"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// HubConfig tunes connection handling in the hub.
type HubConfig struct {
	WriteWait      time.Duration `koanf:"write_wait"`
	PongWait       time.Duration `koanf:"pong_wait"`
	MaxMessageSize int64         `koanf:"max_message_size"`
	SendBuffer     int           `koanf:"send_buffer"`

	// EventsPerSecond is the per-connection inbound rate. Zero disables limiting.
	EventsPerSecond float64 `koanf:"events_per_second"`
	EventsBurst     int     `koanf:"events_burst"`

	// MaxConnectionsPerUser caps concurrent sessions per user. Zero is unlimited.
	MaxConnectionsPerUser int `koanf:"max_connections_per_user"`
}

// AgentConfig tunes the connection agent.
type AgentConfig struct {
	URL   string `koanf:"url"`
	Token string `koanf:"token"`

	// Reconnect delay for attempt n is min(BaseDelay*Decay^(n-1), MaxDelay).
	BaseDelay   time.Duration `koanf:"base_delay"`
	Decay       float64       `koanf:"decay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
	MaxAttempts int           `koanf:"max_attempts"`

	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	QueueRetention    time.Duration `koanf:"queue_retention"`
	QueueMax          int           `koanf:"queue_max"`
	SleepTick         time.Duration `koanf:"sleep_tick"`
	SleepGap          time.Duration `koanf:"sleep_gap"`
	HandshakeTimeout  time.Duration `koanf:"handshake_timeout"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Backend string        `koanf:"backend"` // "memory" or "badger"
	Path    string        `koanf:"path"`
	Breaker BreakerConfig `koanf:"breaker"`

	// Seed users are inserted at startup when missing. YAML only.
	Seed []SeedUser `koanf:"seed"`
}

// BreakerConfig tunes the circuit breaker in front of the store.
type BreakerConfig struct {
	MaxRequests         uint32        `koanf:"max_requests"`
	Interval            time.Duration `koanf:"interval"`
	Timeout             time.Duration `koanf:"timeout"`
	ConsecutiveFailures uint32        `koanf:"consecutive_failures"`
}

// SeedUser is a user record created at startup.
type SeedUser struct {
	ID     string `koanf:"id"`
	Name   string `koanf:"name"`
	Role   string `koanf:"role"`
	Active bool   `koanf:"active"`
}

// AuthzConfig configures the ad-hoc room authorizer.
type AuthzConfig struct {
	// Permissive allows every join:room request and skips Casbin.
	Permissive     bool          `koanf:"permissive"`
	RoomModelPath  string        `koanf:"room_model_path"`
	RoomPolicyPath string        `koanf:"room_policy_path"`
	CacheTTL       time.Duration `koanf:"cache_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	// Default: false
	Caller bool `koanf:"caller"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
