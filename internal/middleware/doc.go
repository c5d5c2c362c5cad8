// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

/*
Package middleware provides HTTP middleware shared by the hub's router.

Key Components:

  - Request ID: UUID-based request tracking, also used as the logging
    correlation ID
  - Prometheus Metrics: request count, latency and in-flight gauge, labeled
    by chi route pattern

Both are plain func(http.Handler) http.Handler and plug into chi's r.Use.
The metrics writer supports http.Hijacker so the WebSocket upgrade route
can sit behind it.

Usage Example:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Handle("/ws", upgradeHandler)
*/
package middleware
