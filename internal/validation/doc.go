// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

// Package validation validates inbound event payloads using go-playground/validator v10.
//
// # Overview
//
// The package provides:
//   - Thread-safe singleton validator (initialized once, cached struct info)
//   - Field names reported by their json tag ("recipientId", not "RecipientID")
//   - A "roomname" tag for ad-hoc room names
//   - French client-facing messages, converted to protocol validation errors
//
// # Usage
//
//	var p protocol.RoomPayload
//	if err := frame.Decode(&p); err != nil {
//	    return err
//	}
//	if verr := validation.ValidateStruct(&p); verr != nil {
//	    return verr.ToProtocolError()
//	}
//
// # Error Message Translation
//
//	required   -> "content est requis"
//	max=4000   -> "content doit contenir au plus 4000 caractères"
//	oneof=a b  -> "type doit valoir : a b"
//	roomname   -> "name contient des caractères non autorisés"
package validation
