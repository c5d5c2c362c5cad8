// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/quayside/internal/auth"
	"github.com/tomtom215/quayside/internal/logging"
	"github.com/tomtom215/quayside/internal/metrics"
	"github.com/tomtom215/quayside/internal/protocol"
)

// connSeq orders connections so fan-out and shutdown visit them in a stable order.
var connSeq atomic.Uint64

// Conn is one authenticated WebSocket session.
type Conn struct {
	id       string
	seq      uint64
	hub      *Hub
	ws       *websocket.Conn
	identity auth.Identity
	limiter  *rate.Limiter

	// mu guards send and closed. Every enqueue checks closed under mu so a
	// send never races the close.
	mu     sync.Mutex
	send   chan []byte
	closed bool

	// rooms is guarded by hub.mu.
	rooms map[string]struct{}

	connectedAt time.Time
}

func newConn(h *Hub, ws *websocket.Conn, id auth.Identity) *Conn {
	c := &Conn{
		id:          uuid.NewString(),
		seq:         connSeq.Add(1),
		hub:         h,
		ws:          ws,
		identity:    id,
		send:        make(chan []byte, h.cfg.SendBuffer),
		rooms:       make(map[string]struct{}),
		connectedAt: time.Now(),
	}
	if h.cfg.EventsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(h.cfg.EventsPerSecond), h.cfg.EventsBurst)
	}
	return c
}

// ID returns the transport-assigned connection identifier.
func (c *Conn) ID() string { return c.id }

// UserID returns the authenticated user.
func (c *Conn) UserID() string { return c.identity.UserID }

// Role returns the authenticated user's role.
func (c *Conn) Role() string { return c.identity.Role }

// Name returns the authenticated user's display name.
func (c *Conn) Name() string { return c.identity.Name }

// enqueue queues one encoded frame. It returns false if the connection is
// closed or its buffer is full.
func (c *Conn) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound queue once. The write pump then sends a
// close frame and exits.
func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// emit encodes and queues one event for this connection only.
func (c *Conn) emit(name protocol.EventName, data interface{}) {
	frame, err := protocol.EncodeFrame(name, data)
	if err != nil {
		c.hub.log.Error().Err(err).Str("event", string(name)).Msg("failed to encode frame")
		return
	}
	if !c.enqueue(frame) {
		c.hub.dropSlow(c)
	}
}

// emitError sends the scoped error acknowledgment.
func (c *Conn) emitError(message string) {
	c.emit(protocol.EventError, protocol.ErrorPayload{Message: message})
}

// readPump reads frames and dispatches them in arrival order. It owns the
// read side of the socket and unregisters the connection on exit.
func (c *Conn) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		_ = c.ws.Close() // Explicitly ignore error - best-effort cleanup
	}()

	pongWait := c.hub.cfg.PongWait
	c.ws.SetReadLimit(c.hub.cfg.MaxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.log.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Err(err).Str("conn_id", c.id).Msg("unexpected websocket close error")
			}
			return
		}
		// Any inbound traffic proves liveness.
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage {
			c.emitError(protocol.ErrUnknownEvent.Message)
			continue
		}
		if c.limiter != nil && !c.limiter.Allow() {
			metrics.WSErrors.WithLabelValues("rate_limited").Inc()
			c.emitError(protocol.ErrRateLimited.Message)
			continue
		}
		c.hub.dispatch(ctx, c, data)
	}
}

// writePump drains the outbound queue and keeps the peer alive with pings.
func (c *Conn) writePump() {
	writeWait := c.hub.cfg.WriteWait
	ticker := time.NewTicker((c.hub.cfg.PongWait * 9) / 10)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close() // Explicitly ignore error - best-effort cleanup
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.log.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				// The hub closed the channel
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.hub.log.Debug().Err(err).Str("conn_id", c.id).Msg("failed to write frame")
				return
			}
			metrics.WSMessagesSent.Inc()

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.log.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// start begins reading and writing for the connection. The context carries
// the connection's correlation fields into handler logs.
func (c *Conn) start(ctx context.Context) {
	logger := c.hub.log.With().
		Str("conn_id", c.id).
		Str("user_id", c.identity.UserID).
		Str("role", c.identity.Role).
		Logger()
	ctx = logging.ContextWithLogger(ctx, logger)
	go c.writePump()
	go c.readPump(ctx)
}
