// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/quayside/internal/logging"
	"github.com/tomtom215/quayside/internal/protocol"
	"github.com/tomtom215/quayside/internal/store"
)

// TokenQueryParam carries the token for clients that cannot set headers on
// the upgrade request (browsers).
const TokenQueryParam = "token"

// tokenCookie is checked last.
const tokenCookie = "token"

// Identity is the authenticated user attached to a connection. It comes from
// the user record, never from client payloads.
type Identity struct {
	UserID string
	Role   string
	Name   string
}

// TokenVerifier verifies a token and returns its claims.
type TokenVerifier interface {
	ValidateToken(token string) (*Claims, error)
}

// Gate authenticates upgrade requests: token -> claims -> user record -> Identity.
type Gate struct {
	verifier TokenVerifier
	users    store.Store
}

// NewGate creates a gate over a token verifier and the record store holding
// the users collection.
func NewGate(verifier TokenVerifier, users store.Store) *Gate {
	return &Gate{verifier: verifier, users: users}
}

// Authenticate extracts and checks the bearer token of r. Every failure is a
// protocol error of kind authentication so callers can answer 401.
func (g *Gate) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	tokenStr := ExtractToken(r)
	if tokenStr == "" {
		return nil, protocol.ErrMissingToken
	}
	return g.AuthenticateToken(ctx, tokenStr)
}

// AuthenticateToken runs the gate on a raw token.
func (g *Gate) AuthenticateToken(ctx context.Context, tokenStr string) (*Identity, error) {
	if tokenStr == "" {
		return nil, protocol.ErrMissingToken
	}

	claims, err := g.verifier.ValidateToken(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			logging.Ctx(ctx).Debug().Msg("Rejected expired token")
		}
		return nil, protocol.Wrap(protocol.KindAuthentication, protocol.ErrInvalidToken.Message, err)
	}

	rec, err := g.users.FindOne(ctx, store.CollectionUsers, store.Filter{store.FieldID: claims.Subject})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, protocol.ErrUserUnavailable
		}
		// Store outage is still an authentication failure for the client.
		return nil, protocol.Wrap(protocol.KindAuthentication, protocol.ErrUserUnavailable.Message,
			fmt.Errorf("user lookup: %w", err))
	}

	var user store.User
	if err := store.Decode(rec, &user); err != nil {
		return nil, protocol.Wrap(protocol.KindAuthentication, protocol.ErrUserUnavailable.Message, err)
	}
	if !user.Active {
		return nil, protocol.ErrUserUnavailable
	}

	return &Identity{UserID: user.ID, Role: user.Role, Name: user.Name}, nil
}

// ExtractToken returns the token from the Authorization header, the query
// string or the token cookie, in that order.
func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if token := strings.TrimSpace(parts[1]); token != "" {
				return token
			}
		}
	}

	if token := strings.TrimSpace(r.URL.Query().Get(TokenQueryParam)); token != "" {
		return token
	}

	if cookie, err := r.Cookie(tokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}
