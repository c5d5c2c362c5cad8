// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

/*
Package supervisor runs the hub process as a suture supervisor tree.

Services are grouped into layers that fail and restart independently:

	quayside (root)
	├── data-layer       store maintenance (Badger value log GC)
	├── messaging-layer  websocket.Hub fan-out loop
	└── api-layer        HTTP listener

Supervisor events (service panics, restarts, backoff) are logged through
sutureslog into the process's zerolog logger via logging.NewSlogLogger.

Usage:

	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddMessagingService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	err := tree.Serve(ctx)

See the services subpackage for the wrappers.
*/
package supervisor
