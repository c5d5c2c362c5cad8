// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package protocol

import "errors"

// Kind classifies failures by how they are handled.
type Kind string

const (
	// KindAuthentication aborts the handshake. The hub never retries it.
	KindAuthentication Kind = "authentication"
	// KindPermission is answered to the sender only; the connection stays open.
	KindPermission Kind = "permission"
	// KindTransport feeds the agent reconnection policy.
	KindTransport Kind = "transport"
	// KindValidation rejects one malformed payload; the connection stays open.
	KindValidation Kind = "validation"
	// KindHeartbeatTimeout is internal to the agent and becomes a forced reconnect.
	KindHeartbeatTimeout Kind = "heartbeat_timeout"
)

// Error carries a Kind and the client-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind and message, so sentinels below work
// with errors.Is even after wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// NewError builds an error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// ClientMessage returns the text safe to send to a client. Errors that carry
// no *Error are reported generically.
func ClientMessage(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	return "Erreur interne"
}

// Sentinels used across the hub.
var (
	ErrMissingToken       = NewError(KindAuthentication, "Authentification requise")
	ErrInvalidToken       = NewError(KindAuthentication, "Token invalide ou expiré")
	ErrUserUnavailable    = NewError(KindAuthentication, "Utilisateur introuvable ou inactif")
	ErrPermissionDenied   = NewError(KindPermission, "Permission refusée")
	ErrRoomForbidden      = NewError(KindPermission, "Accès au salon refusé")
	ErrUnknownEvent       = NewError(KindValidation, "Événement inconnu")
	ErrRateLimited        = NewError(KindValidation, "Trop de requêtes")
	ErrNotificationAccess = NewError(KindPermission, "Notification inaccessible")
	ErrHeartbeatTimeout   = NewError(KindHeartbeatTimeout, "no pong within liveness window")
)
