// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

/*
Package auth authenticates WebSocket handshakes.

Key Components:

  - JWTManager: HS256 token issue and verification (subject = user ID)
  - Gate: token -> claims -> users record -> Identity
  - ExtractToken: Bearer header, query parameter or cookie

The gate trusts only the stored user record for role and display name. A
token for a user that was deleted or deactivated after issuance is rejected
on the next handshake. All gate failures are protocol errors of kind
authentication, which the hub answers with 401 before upgrading.

Usage Example:

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
	    return err
	}
	gate := auth.NewGate(jwtManager, recordStore)

	id, err := gate.Authenticate(r.Context(), r)
	if err != nil {
	    http.Error(w, protocol.ClientMessage(err), http.StatusUnauthorized)
	    return
	}
*/
package auth
