// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/quayside/internal/middleware"
)

// HubStats is the read side of the hub used by the health endpoint.
type HubStats interface {
	ConnectionCount() int
	OnlineUsers() []string
}

// BreakerState reports the store circuit breaker state.
type BreakerState interface {
	State() string
}

// Router wires the hub's HTTP surface.
type Router struct {
	hub           HubStats
	upgrade       http.Handler
	breaker       BreakerState
	chiMiddleware *ChiMiddleware
	wsPath        string
	startTime     time.Time
}

// NewRouter creates a router. upgrade serves the WebSocket handshake at
// wsPath; breaker may be nil when the store runs without one.
func NewRouter(hub HubStats, upgrade http.Handler, breaker BreakerState, mw *ChiMiddleware, wsPath string) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	if wsPath == "" {
		wsPath = "/ws"
	}
	return &Router{
		hub:           hub,
		upgrade:       upgrade,
		breaker:       breaker,
		chiMiddleware: mw,
		wsPath:        wsPath,
		startTime:     time.Now(),
	}
}

// SetupChi configures all HTTP routes using Chi router.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Applied to ALL routes in order
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.PrometheusMetrics)

	// Handshake: per-IP limit, then authentication inside the upgrade handler.
	r.With(router.chiMiddleware.RateLimitWebSocket()).Get(router.wsPath, router.upgrade.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Get("/healthz", router.Health)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	})

	return r
}
