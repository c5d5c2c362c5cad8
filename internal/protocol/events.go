// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

// Package protocol defines the closed set of events exchanged between the hub
// and connection agents, their payload shapes, the wire frame codec and the
// error taxonomy shared by both sides.
//
// Event names fall into three disjoint groups:
//
//   - inbound: sent by agents to the hub (ping, join:room, client:update, ...)
//   - outbound: sent by the hub to agents (pong, client:updated, user:status, ...)
//   - local: raised by an agent for its own subscribers only (connected, ...)
//
// Anything outside these groups is rejected by the receiver.
package protocol

// EventName identifies one variant of the wire union.
type EventName string

// Inbound events (agent -> hub).
const (
	EventPing             EventName = "ping"
	EventJoinRoom         EventName = "join:room"
	EventLeaveRoom        EventName = "leave:room"
	EventClientUpdate     EventName = "client:update"
	EventGoodsUpdate      EventName = "goods:update"
	EventContainerUpdate  EventName = "container:update"
	EventPaymentUpdate    EventName = "payment:update"
	EventMessageSend      EventName = "message:send"
	EventNotificationRead EventName = "notification:read"
)

// Outbound events (hub -> agent). EventNotificationRead doubles as the read
// confirmation.
const (
	EventPong             EventName = "pong"
	EventClientUpdated    EventName = "client:updated"
	EventGoodsUpdated     EventName = "goods:updated"
	EventContainerUpdated EventName = "container:updated"
	EventPaymentUpdated   EventName = "payment:updated"
	EventMessageReceived  EventName = "message:received"
	EventMessageSent      EventName = "message:sent"
	EventNotificationNew  EventName = "notification:new"
	EventUserStatus       EventName = "user:status"
	EventError            EventName = "error"
)

// Local agent events. These never cross the wire.
const (
	EventConnected       EventName = "connected"
	EventDisconnected    EventName = "disconnected"
	EventConnectionError EventName = "connection_error"
	EventReconnectFailed EventName = "reconnect_failed"
)

// Domain is a business entity family whose changes are fanned out.
type Domain string

const (
	DomainClient    Domain = "client"
	DomainGoods     Domain = "goods"
	DomainContainer Domain = "container"
	DomainPayment   Domain = "payment"
)

// Domains lists every domain in a stable order.
var Domains = []Domain{DomainClient, DomainGoods, DomainContainer, DomainPayment}

var (
	inbound = map[EventName]bool{
		EventPing: true, EventJoinRoom: true, EventLeaveRoom: true,
		EventClientUpdate: true, EventGoodsUpdate: true, EventContainerUpdate: true, EventPaymentUpdate: true,
		EventMessageSend: true, EventNotificationRead: true,
	}
	outbound = map[EventName]bool{
		EventPong: true,
		EventClientUpdated: true, EventGoodsUpdated: true, EventContainerUpdated: true, EventPaymentUpdated: true,
		EventMessageReceived: true, EventMessageSent: true,
		EventNotificationNew: true, EventNotificationRead: true,
		EventUserStatus: true, EventError: true,
	}
	local = map[EventName]bool{
		EventConnected: true, EventDisconnected: true, EventConnectionError: true, EventReconnectFailed: true,
	}
)

// IsInbound reports whether name is accepted by the hub.
func IsInbound(name EventName) bool { return inbound[name] }

// IsOutbound reports whether name may be emitted by the hub.
func IsOutbound(name EventName) bool { return outbound[name] }

// IsLocal reports whether name is an agent-local lifecycle event.
func IsLocal(name EventName) bool { return local[name] }

// UpdateEvent returns "<domain>:update".
func UpdateEvent(d Domain) EventName { return EventName(string(d) + ":update") }

// UpdatedEvent returns "<domain>:updated".
func UpdatedEvent(d Domain) EventName { return EventName(string(d) + ":updated") }

// Action builds the permission action checked for a domain verb, e.g.
// Action(DomainPayment, "update") == "payment.update".
func Action(d Domain, verb string) string {
	return string(d) + "." + verb
}
