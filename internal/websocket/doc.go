// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

/*
Package websocket implements the presence and event hub.

Desktop agents connect over a WebSocket upgrade authenticated with a bearer
token. The hub keeps every live connection in three pre-assigned rooms and any
ad-hoc rooms the connection joined, tracks which users are online, checks each
business update against the role policy, and fans the update out to the rooms
of its domain.

Key Components:

  - Hub: connection registry, room index, presence index and event handlers
  - Conn: one authenticated session with its read and write pumps
  - UpgradeHandler: HTTP handler that authenticates and upgrades /ws requests

Rooms:

	global          every connection
	role:<role>     connections sharing a role
	user:<id>       every connection of one user
	<name>          ad-hoc, joined with join:room if the RoomAuthorizer allows it

The first three are managed by the hub and cannot be joined or left on request.

Event Flow:

	agent ──frame──▶ readPump ──▶ dispatch ──▶ handler
	                                             │
	                       ┌─────────────────────┼───────────────────┐
	                       ▼                     ▼                   ▼
	                  c.emit (ack)        sendToUser (direct)   enqueue (rooms)
	                                                                 │
	                                                     RunWithContext ──▶ fanout

Acknowledgments and direct messages are queued on the target connections from
the handler's goroutine. Room broadcasts go through the hub's fan-out queue,
which RunWithContext drains in order, so every member sees a room's events in
emission order.

Presence:

A user goes online when their first connection registers and offline when
their last one unregisters. Each transition sends one user:status event to the
global room; opening or closing extra windows while one stays open sends
nothing.

Errors:

Handlers return errors; dispatch converts them to an error frame for the
offending connection only. Panics are recovered the same way. A connection
whose send buffer fills up is dropped rather than allowed to stall fan-out.

Thread Safety:

Registry, room and presence maps are guarded by Hub.mu. Each Conn guards its
send channel with its own mutex so a late enqueue never races the close.

Example:

	hub := websocket.NewHub(cfg.Hub, websocket.Deps{Store: st, Policy: policy, Rooms: rooms})
	go hub.RunWithContext(ctx)

	r.Handle("/ws", websocket.NewUpgradeHandler(ctx, hub, gate, websocket.UpgradeConfig{
	    AllowedOrigins:   cfg.Security.CORSOrigins,
	    HandshakeTimeout: cfg.Security.HandshakeTimeout,
	}))
*/
package websocket
