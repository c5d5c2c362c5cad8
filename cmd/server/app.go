// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/quayside/internal/api"
	"github.com/tomtom215/quayside/internal/auth"
	"github.com/tomtom215/quayside/internal/authz"
	"github.com/tomtom215/quayside/internal/config"
	"github.com/tomtom215/quayside/internal/logging"
	"github.com/tomtom215/quayside/internal/store"
	"github.com/tomtom215/quayside/internal/supervisor"
	"github.com/tomtom215/quayside/internal/supervisor/services"
	ws "github.com/tomtom215/quayside/internal/websocket"
)

// Badger value log GC cadence.
const (
	storeGCInterval     = 10 * time.Minute
	storeGCDiscardRatio = 0.5
)

// app holds the hub process's wired components.
type app struct {
	cfg     *config.Config
	backend store.Store
	store   *store.BreakerStore
	jwt     *auth.JWTManager
	rooms   authz.RoomAuthorizer
	hub     *ws.Hub
	handler http.Handler
}

// newApp wires the store, auth, hub and router from cfg. baseCtx scopes
// connection handlers. The caller owns Close.
func newApp(baseCtx context.Context, cfg *config.Config) (*app, error) {
	backend, err := store.Open(store.Config{Backend: cfg.Store.Backend, Path: cfg.Store.Path})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{cfg: cfg, backend: backend}

	a.store = store.NewBreakerStore(backend, store.BreakerConfig{
		MaxRequests:         cfg.Store.Breaker.MaxRequests,
		Interval:            cfg.Store.Breaker.Interval,
		Timeout:             cfg.Store.Breaker.Timeout,
		ConsecutiveFailures: cfg.Store.Breaker.ConsecutiveFailures,
	})

	if n, err := store.EnsureUsers(baseCtx, a.store, seedUsers(cfg.Store.Seed)); err != nil {
		a.Close()
		return nil, fmt.Errorf("seed users: %w", err)
	} else if n > 0 {
		logging.Info().Int("created", n).Msg("Seed users created")
	}

	a.jwt, err = auth.NewJWTManager(&cfg.Security)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize JWT manager: %w", err)
	}

	if cfg.Authz.Permissive {
		logging.Warn().Msg("Room authorization is permissive: any user may join any ad-hoc room")
		a.rooms = authz.Permissive{}
	} else {
		rooms, err := authz.NewCasbinRoomAuthorizer(&authz.EnforcerConfig{
			ModelPath:  cfg.Authz.RoomModelPath,
			PolicyPath: cfg.Authz.RoomPolicyPath,
			CacheTTL:   cfg.Authz.CacheTTL,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initialize room authorizer: %w", err)
		}
		a.rooms = rooms
	}

	a.hub = ws.NewHub(cfg.Hub, ws.Deps{
		Store:  a.store,
		Policy: authz.DefaultPolicy(),
		Rooms:  a.rooms,
	})

	upgrade := ws.NewUpgradeHandler(baseCtx, a.hub, auth.NewGate(a.jwt, a.store), ws.UpgradeConfig{
		AllowedOrigins:   cfg.Security.CORSOrigins,
		HandshakeTimeout: cfg.Security.HandshakeTimeout,
	})
	mw := api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(cfg.Security))
	a.handler = api.NewRouter(a.hub, upgrade, a.store, mw, cfg.Server.WSPath).SetupChi()

	return a, nil
}

// seedUsers converts configured seed users to store records.
func seedUsers(seed []config.SeedUser) []store.User {
	users := make([]store.User, 0, len(seed))
	for _, s := range seed {
		users = append(users, store.User{ID: s.ID, Name: s.Name, Role: s.Role, Active: s.Active})
	}
	return users
}

// supervise adds the app's services to tree.
func (a *app) supervise(tree *supervisor.SupervisorTree, server services.HTTPServer) {
	if gc, ok := a.backend.(*store.BadgerStore); ok {
		tree.AddDataService(services.NewStoreGCService(gc, storeGCInterval, storeGCDiscardRatio))
	}
	tree.AddMessagingService(services.NewHubService(a.hub))
	tree.AddAPIService(services.NewHTTPServerService(server, a.cfg.Server.ShutdownTimeout))
}

// issueToken signs a token for a stored user, for operators bootstrapping
// agents without a login service.
func (a *app) issueToken(ctx context.Context, userID string) (string, error) {
	rec, err := a.store.FindOne(ctx, store.CollectionUsers, store.Filter{store.FieldID: userID})
	if err != nil {
		return "", fmt.Errorf("lookup user %s: %w", userID, err)
	}
	var u store.User
	if err := store.Decode(rec, &u); err != nil {
		return "", err
	}
	if !u.Active {
		return "", fmt.Errorf("user %s is inactive", userID)
	}
	return a.jwt.GenerateToken(u.ID, u.Role, u.Name)
}

// Close releases the room authorizer and the store.
func (a *app) Close() {
	if c, ok := a.rooms.(*authz.CasbinRoomAuthorizer); ok {
		c.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
		return
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}
}
