// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks the configuration used by the hub.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateHub(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	return c.validateLogging()
}

// ValidateAgent checks the configuration used by the agent binary.
func (c *Config) ValidateAgent() error {
	if err := c.validateAgent(); err != nil {
		return err
	}
	return c.validateLogging()
}

// validateServer validates server configuration
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if !strings.HasPrefix(c.Server.WSPath, "/") {
		return fmt.Errorf("WS_PATH must start with /")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// validateSecurity validates security configuration
func (c *Config) validateSecurity() error {
	if err := c.validateJWTSecret(); err != nil {
		return err
	}
	if c.Security.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be positive")
	}
	if c.Security.HandshakeTimeout <= 0 {
		return fmt.Errorf("HANDSHAKE_TIMEOUT must be positive")
	}
	if err := c.validateCORS(); err != nil {
		return err
	}
	return c.validateRateLimits()
}

// validateJWTSecret validates the JWT secret configuration
func (c *Config) validateJWTSecret() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters for security")
	}
	if containsPlaceholder(c.Security.JWTSecret) {
		return fmt.Errorf("JWT_SECRET contains a placeholder value - generate a secure secret with: openssl rand -base64 32")
	}
	return nil
}

// validateCORS rejects wildcard origins in production.
func (c *Config) validateCORS() error {
	if c.hasWildcardCORS() && c.IsProduction() {
		return fmt.Errorf("CORS_ORIGINS=* (wildcard) is not allowed in production; " +
			"set specific origins or use ENVIRONMENT=development")
	}
	return nil
}

func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// Rate limit constants
const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
)

// validateRateLimits validates rate limiting configuration bounds.
func (c *Config) validateRateLimits() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

// validateHub validates hub connection settings
func (c *Config) validateHub() error {
	h := c.Hub
	switch {
	case h.WriteWait <= 0:
		return fmt.Errorf("HUB_WRITE_WAIT must be positive")
	case h.PongWait <= 0:
		return fmt.Errorf("HUB_PONG_WAIT must be positive")
	case h.MaxMessageSize <= 0:
		return fmt.Errorf("HUB_MAX_MESSAGE_SIZE must be positive")
	case h.SendBuffer < 1:
		return fmt.Errorf("HUB_SEND_BUFFER must be at least 1")
	case h.EventsPerSecond < 0:
		return fmt.Errorf("HUB_EVENTS_PER_SECOND must not be negative")
	case h.EventsPerSecond > 0 && h.EventsBurst < 1:
		return fmt.Errorf("HUB_EVENTS_BURST must be at least 1 when rate limiting is enabled")
	case h.MaxConnectionsPerUser < 0:
		return fmt.Errorf("HUB_MAX_CONNECTIONS_PER_USER must not be negative")
	}
	return nil
}

// validateAgent validates the connection agent settings
func (c *Config) validateAgent() error {
	a := c.Agent
	if err := validateHubURL(a.URL); err != nil {
		return err
	}
	switch {
	case a.BaseDelay <= 0:
		return fmt.Errorf("AGENT_BASE_DELAY must be positive")
	case a.Decay < 1:
		return fmt.Errorf("AGENT_DECAY must be at least 1")
	case a.MaxDelay < a.BaseDelay:
		return fmt.Errorf("AGENT_MAX_DELAY must be at least AGENT_BASE_DELAY")
	case a.MaxAttempts < 1:
		return fmt.Errorf("AGENT_MAX_ATTEMPTS must be at least 1")
	case a.HeartbeatInterval <= 0:
		return fmt.Errorf("AGENT_HEARTBEAT_INTERVAL must be positive")
	case a.QueueRetention <= 0:
		return fmt.Errorf("AGENT_QUEUE_RETENTION must be positive")
	case a.QueueMax < 1:
		return fmt.Errorf("AGENT_QUEUE_MAX must be at least 1")
	case a.SleepTick <= 0:
		return fmt.Errorf("AGENT_SLEEP_TICK must be positive")
	case a.SleepGap <= a.SleepTick:
		return fmt.Errorf("AGENT_SLEEP_GAP must exceed AGENT_SLEEP_TICK")
	case a.HandshakeTimeout <= 0:
		return fmt.Errorf("AGENT_HANDSHAKE_TIMEOUT must be positive")
	}
	return nil
}

func validateHubURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("AGENT_URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("AGENT_URL is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("AGENT_URL must use ws:// or wss://")
	}
	if u.Host == "" {
		return fmt.Errorf("AGENT_URL must include a host")
	}
	return nil
}

var validStoreBackends = map[string]bool{
	"memory": true,
	"badger": true,
}

// validateStore validates the record store settings
func (c *Config) validateStore() error {
	if !validStoreBackends[c.Store.Backend] {
		return fmt.Errorf("STORE_BACKEND must be one of: memory, badger")
	}
	if c.Store.Backend == "badger" && c.Store.Path == "" {
		return fmt.Errorf("STORE_PATH is required when STORE_BACKEND=badger")
	}
	if c.Store.Breaker.ConsecutiveFailures < 1 {
		return fmt.Errorf("STORE_BREAKER_CONSECUTIVE_FAILURES must be at least 1")
	}
	seen := make(map[string]bool, len(c.Store.Seed))
	for _, u := range c.Store.Seed {
		if u.ID == "" || u.Role == "" {
			return fmt.Errorf("store.seed entries need an id and a role")
		}
		if seen[u.ID] {
			return fmt.Errorf("store.seed has duplicate id %q", u.ID)
		}
		seen[u.ID] = true
	}
	return nil
}

// validLogLevels defines the allowed log levels
var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats defines the allowed log formats
var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// validateLogging validates logging configuration
func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// placeholderPatterns indicate a value was never replaced.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_SECRET",
	"PLACEHOLDER",
	"EXAMPLE",
}

func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}
