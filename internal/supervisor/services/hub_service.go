// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package services

import (
	"context"
)

// ContextHub matches *websocket.Hub's fan-out loop.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService runs the hub's fan-out loop under supervision. When the loop
// returns on cancellation the hub has already closed every live socket.
//
//	tree.AddMessagingService(services.NewHubService(hub))
type HubService struct {
	hub  ContextHub
	name string
}

// NewHubService creates a new hub service wrapper.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{
		hub:  hub,
		name: "websocket-hub",
	}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for suture's log messages.
func (s *HubService) String() string {
	return s.name
}
