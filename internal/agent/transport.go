// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/quayside/internal/protocol"
)

// Transport is one open connection to the hub.
type Transport interface {
	// Send writes one encoded frame.
	Send(frame []byte) error
	// Close closes the connection. OnClose may still fire afterwards.
	Close() error
}

// TransportEvents receives what the transport reads. OnClose is called at
// most once, after the last OnFrame.
type TransportEvents interface {
	OnFrame(data []byte)
	OnClose(err error)
}

// Dialer opens transports. The token is attached to the handshake.
type Dialer interface {
	Dial(ctx context.Context, url, token string, events TransportEvents) (Transport, error)
}

// WebsocketDialer dials the hub with gorilla/websocket and sends the token as
// a bearer Authorization header.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	MaxMessageSize   int64
}

// NewWebsocketDialer creates a dialer with the given handshake timeout.
func NewWebsocketDialer(handshakeTimeout time.Duration) *WebsocketDialer {
	return &WebsocketDialer{
		HandshakeTimeout: handshakeTimeout,
		WriteWait:        10 * time.Second,
		MaxMessageSize:   1 << 20,
	}
}

// Dial implements Dialer. Handshake failures are protocol errors: 401 is an
// authentication error carrying the hub's message, anything else transport.
func (d *WebsocketDialer) Dial(ctx context.Context, url, token string, events TransportEvents) (Transport, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512)) //nolint:errcheck // message is best-effort
				return nil, protocol.Wrap(protocol.KindAuthentication, strings.TrimSpace(string(body)), err)
			}
			return nil, protocol.Wrap(protocol.KindTransport, fmt.Sprintf("handshake failed (HTTP %d)", resp.StatusCode), err)
		}
		return nil, protocol.Wrap(protocol.KindTransport, "dial failed", err)
	}

	if d.MaxMessageSize > 0 {
		conn.SetReadLimit(d.MaxMessageSize)
	}
	t := &wsTransport{conn: conn, writeWait: d.WriteWait}
	go t.readLoop(events)
	return t, nil
}

type wsTransport struct {
	conn      *websocket.Conn
	writeWait time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (t *wsTransport) Send(frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.writeWait > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeWait)); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = t.conn.Close()
	})
	return err
}

// readLoop owns the read side. Control frames (server pings) are answered by
// gorilla's default handlers inside ReadMessage.
func (t *wsTransport) readLoop(events TransportEvents) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			events.OnClose(err)
			return
		}
		if msgType == websocket.TextMessage {
			events.OnFrame(data)
		}
	}
}
