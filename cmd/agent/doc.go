// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

/*
Package main is quayside-agent, a command-line connection agent.

It connects to a hub with the same reconnect, heartbeat and offline queue
behavior as the embedded agent, logs every event it receives, and sends
events given on the command line or on stdin. Operators use it to watch
traffic and to script updates.

	quayside-agent --url ws://localhost:8080/ws --token "$(quayside-server --issue-token u-admin)" \
	    --emit 'join:room={"room":"quai-3"}' --stdin

Stdin lines have the form "name json", for example:

	client:update {"id":42,"name":"Armement Moulinsart"}

With --token-file the token is read from a file and re-read after every
failed or lost connection, so an issuer can rotate it without restarting
the agent.

The agent exits on SIGINT, SIGTERM, or after reconnect_failed.
*/
package main
