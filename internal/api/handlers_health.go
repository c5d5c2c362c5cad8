// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/quayside/internal/logging"
)

// HealthStatus is the body of GET /healthz.
type HealthStatus struct {
	Status       string  `json:"status"`
	Connections  int     `json:"connections"`
	OnlineUsers  int     `json:"onlineUsers"`
	StoreBreaker string  `json:"storeBreaker,omitempty"`
	Uptime       float64 `json:"uptime"`
	Timestamp    int64   `json:"timestamp"`
}

// Health reports hub counts and the store breaker state. An open breaker
// marks the service degraded with 503 so load balancers stop routing new
// sessions to it; live sockets keep running.
func (router *Router) Health(w http.ResponseWriter, _ *http.Request) {
	status := HealthStatus{
		Status:      "healthy",
		Connections: router.hub.ConnectionCount(),
		OnlineUsers: len(router.hub.OnlineUsers()),
		Uptime:      time.Since(router.startTime).Seconds(),
		Timestamp:   time.Now().UnixMilli(),
	}

	code := http.StatusOK
	if router.breaker != nil {
		status.StoreBreaker = router.breaker.State()
		if status.StoreBreaker == "open" {
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	respondJSON(w, code, status)
}

func respondJSON(w http.ResponseWriter, code int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Erreur interne", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
