// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package websocket

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/quayside/internal/auth"
	"github.com/tomtom215/quayside/internal/logging"
	"github.com/tomtom215/quayside/internal/metrics"
	"github.com/tomtom215/quayside/internal/protocol"
)

// Authenticator resolves the identity behind an upgrade request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*auth.Identity, error)
}

// UpgradeConfig configures the HTTP side of the handshake.
type UpgradeConfig struct {
	// AllowedOrigins is matched against the Origin header. "*" allows any.
	AllowedOrigins   []string
	HandshakeTimeout time.Duration
}

// UpgradeHandler authenticates and upgrades /ws requests. Authentication
// runs before the upgrade so failures are plain HTTP 401 responses and no
// room is ever joined.
type UpgradeHandler struct {
	hub      *Hub
	authn    Authenticator
	upgrader websocket.Upgrader
	origins  []string
	baseCtx  context.Context
}

// NewUpgradeHandler creates the handler. baseCtx scopes connection handler
// logs and lookups; it is not canceled on hub shutdown (the hub closes the
// sockets itself).
func NewUpgradeHandler(baseCtx context.Context, hub *Hub, authn Authenticator, cfg UpgradeConfig) *UpgradeHandler {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	u := &UpgradeHandler{
		hub:     hub,
		authn:   authn,
		origins: cfg.AllowedOrigins,
		baseCtx: baseCtx,
	}
	u.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      u.checkOrigin,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	return u
}

// ServeHTTP implements http.Handler.
func (u *UpgradeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := u.authn.Authenticate(r.Context(), r)
	if err != nil {
		metrics.WSHandshakeRejected.WithLabelValues("unauthenticated").Inc()
		logging.Ctx(r.Context()).Info().Err(err).Str("remote", r.RemoteAddr).Msg("websocket handshake rejected")
		http.Error(w, protocol.ClientMessage(err), http.StatusUnauthorized)
		return
	}

	if !u.hub.CanAccept(id.UserID) {
		metrics.WSHandshakeRejected.WithLabelValues("too_many_connections").Inc()
		http.Error(w, "Trop de connexions simultanées", http.StatusTooManyRequests)
		return
	}

	ws, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		metrics.WSHandshakeRejected.WithLabelValues("upgrade_failed").Inc()
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newConn(u.hub, ws, *id)
	if err := u.hub.register(c); err != nil {
		metrics.WSHandshakeRejected.WithLabelValues("too_many_connections").Inc()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Trop de connexions simultanées"),
			time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}

	ctx := logging.ContextWithCorrelationID(u.baseCtx, c.ID())
	c.start(ctx)
}

// checkOrigin accepts requests without an Origin header (desktop agents and
// CLI tools do not send one) and browser requests from an allowed origin.
func (u *UpgradeHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range u.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// sanitizeLogValue strips control characters and bounds length to prevent
// log injection.
func sanitizeLogValue(s string) string {
	const maxLen = 200
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}
