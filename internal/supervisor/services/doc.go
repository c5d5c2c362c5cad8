// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

/*
Package services provides suture.Service wrappers for the hub's components.

Each wrapper translates a component's lifecycle into suture's
Serve(ctx) error and names itself through fmt.Stringer for supervisor logs.

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Returns listener errors so suture restarts the listener

Hub (HubService):
  - Runs websocket.Hub's fan-out loop
  - On cancellation the hub closes all live sockets before returning

Store GC (StoreGCService):
  - Runs Badger value log GC on an interval
  - Only added when the store backend is badger

# Usage

	tree.AddDataService(services.NewStoreGCService(badgerStore, 10*time.Minute, 0.5))
	tree.AddMessagingService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
*/
package services
