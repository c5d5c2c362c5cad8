// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

// Package authz decides what an authenticated connection may do.
//
// Two independent checks live here.
//
// # Action Policy
//
// Business-update events are gated by a static, data-driven table mapping a
// role to an ordered list of rules. Actions are dotted names such as
// "payment.update". A rule is one of:
//
//	*              every action
//	client.*       any action whose first segment is "client"
//	*.view         any action whose last segment is "view"
//	payment.view   exactly that action
//
// Matching is segment based: a star never matches part of a segment, so
// "client.*" does not allow "clients.update". The role "admin" is allowed
// everything regardless of its rules. Policy.Allowed is a pure function, so
// tests can enumerate every (role, action) pair.
//
// Default table:
//
//	admin       *
//	manager     client.*, goods.*, container.*, payment.view
//	operateur   client.*, goods.*, container.*
//	accountant  payment.*, client.view
//	invite      *.view
//
// # Room Authorizer
//
// Ad-hoc join:room requests go through a RoomAuthorizer. The default is
// permissive. CasbinRoomAuthorizer evaluates a Casbin model with keyMatch on
// room names:
//
//	[matchers]
//	m = (g(r.sub, p.sub) || p.sub == "*") && keyMatch(r.obj, p.obj) && (r.act == p.act || p.act == "*")
//
// The embedded model.conf and policy.csv are used when no paths are
// configured. Decisions are cached for a short TTL.
package authz
