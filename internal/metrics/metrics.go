// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight HTTP requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Requests rejected by the per-IP rate limiter",
		},
		[]string{"endpoint"},
	)

	// Hub Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of admitted WebSocket connections",
		},
	)

	WSOnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_online_users",
			Help: "Current number of users with at least one live connection",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of frames queued to connections",
		},
	)

	WSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of inbound frames by event",
		},
		[]string{"event"},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of error acknowledgments by kind",
		},
		[]string{"error_type"},
	)

	WSHandshakeRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_handshake_rejected_total",
			Help: "Handshakes refused before upgrade",
		},
		[]string{"reason"},
	)

	WSPermissionDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_permission_denied_total",
			Help: "Business updates refused by the action policy",
		},
		[]string{"role", "action"},
	)

	WSBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_broadcasts_total",
			Help: "Room fan-outs by outbound event",
		},
		[]string{"event"},
	)

	WSSlowConsumers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_slow_consumers_total",
			Help: "Connections dropped because their send buffer was full",
		},
	)

	// Presence Metrics
	PresenceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_transitions_total",
			Help: "User presence transitions by new status",
		},
		[]string{"status"},
	)

	// Agent Metrics
	AgentState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_connection_state",
			Help: "Agent connection state (0=disconnected, 1=connecting, 2=connected)",
		},
	)

	AgentReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_reconnect_attempts_total",
			Help: "Reconnect attempts scheduled by the agent",
		},
	)

	AgentReconnectFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_reconnect_failed_total",
			Help: "Times the agent gave up after exhausting its retry ceiling",
		},
	)

	AgentHeartbeatTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_heartbeat_timeouts_total",
			Help: "Connections force-closed for missing pongs",
		},
	)

	AgentQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_queue_depth",
			Help: "Outbound messages held while disconnected",
		},
	)

	AgentQueueDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_queue_dropped_total",
			Help: "Queued messages discarded before delivery",
		},
		[]string{"reason"}, // "expired", "overflow"
	)

	AgentHandlerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_handler_panics_total",
			Help: "Local subscriber handlers that panicked",
		},
	)

	// Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Record store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "collection"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_errors_total",
			Help: "Record store operation errors",
		},
		[]string{"operation", "collection", "error_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordAPIRequest records an HTTP request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight HTTP requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordStoreOperation records a record store call. Error text is truncated
// to keep label cardinality bounded.
func RecordStoreOperation(operation, collection string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(operation, collection).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		StoreErrors.WithLabelValues(operation, collection, errorType).Inc()
	}
}

// SetHubGauges publishes the connection and online-user counts.
func SetHubGauges(connections, onlineUsers int) {
	WSConnections.Set(float64(connections))
	WSOnlineUsers.Set(float64(onlineUsers))
}

// RecordQueueDrop counts queued messages discarded for reason.
func RecordQueueDrop(reason string, n int) {
	if n > 0 {
		AgentQueueDropped.WithLabelValues(reason).Add(float64(n))
	}
}
