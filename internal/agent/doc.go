// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

/*
Package agent implements the client side of the hub connection.

An Agent keeps exactly one logical connection to the hub. It authenticates
with a bearer token, reconnects with exponential backoff after failures,
detects silently dead connections with a heartbeat, queues outbound events
while offline, and re-dispatches hub events to in-process subscribers so UI
modules never touch the transport.

Lifecycle:

	disconnected ──Connect──▶ connecting ──dial ok──▶ connected
	     ▲                        │                       │
	     └──────dial error────────┘◀──close / heartbeat───┘
	     │
	     └── reconnect timer (min(base*decay^(n-1), max)) ──▶ connecting

Disconnect makes disconnected terminal until the next Connect. After
MaxAttempts consecutive failed schedules the agent stops retrying and emits
reconnect_failed once.

Local events:

	connected          transport open, queue flushed
	disconnected       {reason}
	connection_error   {error} for a failed dial
	reconnect_failed   retry ceiling exceeded

These never reach the wire, even when passed to Emit.

Offline queue:

Emit while not connected appends to a bounded queue. On connect the queue is
replayed in enqueue order, skipping entries older than QueueRetention.

Example:

	a := agent.New(cfg.Agent, agent.NewWebsocketDialer(cfg.Agent.HandshakeTimeout))
	a.On(protocol.EventClientUpdated, func(data json.RawMessage) { refresh(data) })
	if !a.Init(ctx, token) {
	    // run without real-time sync
	}
	defer a.Disconnect()
*/
package agent
