// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package authz

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// ActionJoin is the Casbin action evaluated for join:room.
const ActionJoin = "join"

// RoomAuthorizer decides ad-hoc room joins.
type RoomAuthorizer interface {
	CanJoin(ctx context.Context, userID, role, room string) (bool, error)
}

// Permissive allows every join.
type Permissive struct{}

// CanJoin always returns true.
func (Permissive) CanJoin(context.Context, string, string, string) (bool, error) {
	return true, nil
}

// EnforcerConfig holds configuration for the Casbin room authorizer.
type EnforcerConfig struct {
	// ModelPath is the Casbin model file. Empty uses the embedded model.
	ModelPath string

	// PolicyPath is the Casbin policy CSV. Empty uses the embedded policy.
	PolicyPath string

	// CacheTTL is how long decisions are cached. Zero disables the cache.
	CacheTTL time.Duration
}

// DefaultEnforcerConfig returns the embedded model and policy with a 1 minute cache.
func DefaultEnforcerConfig() *EnforcerConfig {
	return &EnforcerConfig{CacheTTL: time.Minute}
}

// CasbinRoomAuthorizer evaluates room joins with a Casbin SyncedEnforcer.
// The subject is the user id; roles are linked with g(user, role) on the fly.
type CasbinRoomAuthorizer struct {
	config   *EnforcerConfig
	enforcer *casbin.SyncedEnforcer
	cache    *enforcementCache
}

// NewCasbinRoomAuthorizer loads the model and policy.
func NewCasbinRoomAuthorizer(config *EnforcerConfig) (*CasbinRoomAuthorizer, error) {
	if config == nil {
		config = DefaultEnforcerConfig()
	}

	var m model.Model
	var err error
	if config.ModelPath != "" && fileExists(config.ModelPath) {
		m, err = model.NewModelFromFile(config.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if config.PolicyPath != "" && fileExists(config.PolicyPath) {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(config.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	a := &CasbinRoomAuthorizer{config: config, enforcer: enforcer}
	if config.CacheTTL > 0 {
		a.cache = newEnforcementCache(config.CacheTTL)
	}
	return a, nil
}

// loadEmbeddedPolicy parses policy CSV lines into the enforcer.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch parts[0] {
		case "p":
			if len(parts) >= 4 {
				if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
					return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
				}
			}
		case "g":
			if len(parts) >= 3 {
				if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
					return fmt.Errorf("failed to add grouping policy %v: %w", parts[1:], err)
				}
			}
		}
	}
	return nil
}

// CanJoin checks the user directly, then its role.
func (a *CasbinRoomAuthorizer) CanJoin(_ context.Context, userID, role, room string) (bool, error) {
	for _, subject := range []string{userID, role} {
		if subject == "" {
			continue
		}
		allowed, err := a.enforce(subject, room, ActionJoin)
		if err != nil {
			return false, err
		}
		if allowed {
			return true, nil
		}
	}
	return false, nil
}

func (a *CasbinRoomAuthorizer) enforce(subject, room, action string) (bool, error) {
	if a.cache != nil {
		if allowed, ok := a.cache.get(subject, room, action); ok {
			return allowed, nil
		}
	}
	allowed, err := a.enforcer.Enforce(subject, room, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	if a.cache != nil {
		a.cache.set(subject, room, action, allowed)
	}
	return allowed, nil
}

// AddPolicy grants subject the action on rooms matching pattern.
func (a *CasbinRoomAuthorizer) AddPolicy(subject, pattern, action string) (bool, error) {
	added, err := a.enforcer.AddPolicy(subject, pattern, action)
	if err != nil {
		return false, fmt.Errorf("failed to add policy: %w", err)
	}
	if a.cache != nil {
		a.cache.clear()
	}
	return added, nil
}

// AddRoleForUser links a user id to a role.
func (a *CasbinRoomAuthorizer) AddRoleForUser(userID, role string) (bool, error) {
	added, err := a.enforcer.AddGroupingPolicy(userID, role)
	if err != nil {
		return false, fmt.Errorf("failed to add role: %w", err)
	}
	if a.cache != nil {
		a.cache.invalidateUser(userID)
	}
	return added, nil
}

// Close stops the cache janitor.
func (a *CasbinRoomAuthorizer) Close() {
	if a.cache != nil {
		a.cache.stop()
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
