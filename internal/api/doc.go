// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

/*
Package api provides the hub's HTTP surface on a chi router.

Routes:

	GET /ws        WebSocket handshake (per-IP rate limit, then token gate)
	GET /healthz   connection and online-user counts, store breaker state
	GET /metrics   Prometheus exposition

Global middleware, in order: request ID (also the log correlation ID),
RealIP, Recoverer, CORS, Prometheus request metrics.

Usage Example:

	upgrade := websocket.NewUpgradeHandler(ctx, hub, gate, websocket.UpgradeConfig{...})
	mw := api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(cfg.Security))
	router := api.NewRouter(hub, upgrade, breakerStore, mw, cfg.Server.WSPath)
	srv := &http.Server{Addr: cfg.Server.Addr(), Handler: router.SetupChi()}
*/
package api
