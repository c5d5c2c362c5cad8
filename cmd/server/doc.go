// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

/*
Package main is the Quayside hub server.

The hub accepts authenticated WebSocket connections from the logistics
frontend, tracks presence, fans out domain updates (clients, goods,
containers, payments) to role rooms, and delivers direct messages and
notifications.

# Process Layout

	quayside
	├── data-layer       Badger value log GC (store.backend=badger only)
	├── messaging-layer  websocket.Hub
	└── api-layer        HTTP server: /ws, /healthz, /metrics

# Configuration

Koanf layers defaults, an optional config.yaml (CONFIG_PATH overrides the
search) and environment variables. The hub refuses to start without a
JWT_SECRET of at least 32 characters. Seed users can only be declared in
the YAML file:

	store:
	  backend: badger
	  path: /var/lib/quayside
	  seed:
	    - {id: u-admin, name: "Capitaine Haddock", role: admin, active: true}

# Tokens

There is no login endpoint. To mint a token for an existing user:

	quayside-server --issue-token u-admin

# Signals

SIGINT and SIGTERM cancel the supervisor tree. The HTTP server stops
accepting upgrades, the hub closes every socket with a going-away frame,
and the store is closed.
*/
package main
