// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

/*
Package config loads configuration for the hub and agent binaries.

# Configuration Sources

Values are layered with koanf, later layers winning:

 1. Struct defaults (defaultConfig)
 2. YAML file: CONFIG_PATH, else config.yaml, config.yml, /etc/quayside/config.yaml
 3. Environment variables from an explicit mapping table; unmapped variables are ignored

# Environment Variables

Server:
  - HTTP_HOST, HTTP_PORT (default 0.0.0.0:8080), WS_PATH (default /ws)
  - SHUTDOWN_TIMEOUT (default 15s), ENVIRONMENT (default development)

Security:
  - JWT_SECRET (required by the hub, min 32 chars)
  - SESSION_TIMEOUT (default 24h), HANDSHAKE_TIMEOUT (default 10s)
  - CORS_ORIGINS (comma-separated, default *)
  - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW, DISABLE_RATE_LIMIT

Hub:
  - HUB_WRITE_WAIT (10s), HUB_PONG_WAIT (60s), HUB_MAX_MESSAGE_SIZE (64KiB)
  - HUB_SEND_BUFFER (256), HUB_EVENTS_PER_SECOND (20), HUB_EVENTS_BURST (40)
  - HUB_MAX_CONNECTIONS_PER_USER (0 = unlimited)

Agent:
  - AGENT_URL, AGENT_TOKEN
  - AGENT_BASE_DELAY (3s), AGENT_DECAY (1.5), AGENT_MAX_DELAY (30s), AGENT_MAX_ATTEMPTS (10)
  - AGENT_HEARTBEAT_INTERVAL (25s), AGENT_HANDSHAKE_TIMEOUT (10s)
  - AGENT_QUEUE_RETENTION (60s), AGENT_QUEUE_MAX (500)
  - AGENT_SLEEP_TICK (5s), AGENT_SLEEP_GAP (60s)

Store:
  - STORE_BACKEND (memory|badger), STORE_PATH
  - STORE_BREAKER_MAX_REQUESTS, STORE_BREAKER_INTERVAL, STORE_BREAKER_TIMEOUT,
    STORE_BREAKER_CONSECUTIVE_FAILURES

Authz:
  - AUTHZ_PERMISSIVE (default true), AUTHZ_ROOM_MODEL_PATH, AUTHZ_ROOM_POLICY_PATH, AUTHZ_CACHE_TTL

Logging:
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER

# Example

	store:
	  backend: badger
	  path: /var/lib/quayside
	  seed:
	    - {id: u-1, name: Marie, role: admin, active: true}
	    - {id: u-2, name: Paul, role: operateur, active: true}
*/
package config
