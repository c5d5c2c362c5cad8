// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

/*
Package metrics provides Prometheus collectors for the hub, the agent and the
record store.

All collectors are registered on the default registry through promauto and are
exported by the /metrics route in internal/api:

	curl http://localhost:8080/metrics

# Available Metrics

HTTP:
  - api_requests_total{method, endpoint, status_code}
  - api_request_duration_seconds{method, endpoint}
  - api_active_requests
  - api_rate_limit_hits_total{endpoint}

Hub:
  - websocket_connections, websocket_online_users
  - websocket_messages_sent_total, websocket_messages_received_total{event}
  - websocket_errors_total{error_type}
  - websocket_handshake_rejected_total{reason}
  - websocket_permission_denied_total{role, action}
  - websocket_broadcasts_total{event}
  - websocket_slow_consumers_total
  - presence_transitions_total{status}

Agent:
  - agent_connection_state (0=disconnected, 1=connecting, 2=connected)
  - agent_reconnect_attempts_total, agent_reconnect_failed_total
  - agent_heartbeat_timeouts_total
  - agent_queue_depth, agent_queue_dropped_total{reason}
  - agent_handler_panics_total

Store:
  - store_operation_duration_seconds{operation, collection}
  - store_errors_total{operation, collection, error_type}
  - circuit_breaker_state{name} (0=closed, 1=half-open, 2=open)
  - circuit_breaker_requests_total{name, result}
  - circuit_breaker_consecutive_failures{name}
  - circuit_breaker_state_transitions_total{name, from_state, to_state}
*/
package metrics
