// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package services

import (
	"context"
	"time"

	"github.com/tomtom215/quayside/internal/logging"
)

// GarbageCollector matches *store.BadgerStore's value log GC.
type GarbageCollector interface {
	RunGC(discardRatio float64) (int, error)
}

// StoreGCService periodically reclaims space in the Badger value log.
// Messages, notifications and activity logs are append-heavy, so without it
// the value log only grows.
//
// A failed GC run is logged and retried on the next tick rather than
// returned: restarting the service would not make Badger more likely to
// succeed.
type StoreGCService struct {
	store        GarbageCollector
	interval     time.Duration
	discardRatio float64
	name         string
}

// NewStoreGCService creates a GC service. Zero values default to a
// 10 minute interval and a 0.5 discard ratio.
func NewStoreGCService(store GarbageCollector, interval time.Duration, discardRatio float64) *StoreGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if discardRatio <= 0 || discardRatio >= 1 {
		discardRatio = 0.5
	}
	return &StoreGCService{
		store:        store,
		interval:     interval,
		discardRatio: discardRatio,
		name:         "store-gc",
	}
}

// Serve implements suture.Service.
func (s *StoreGCService) Serve(ctx context.Context) error {
	log := logging.WithComponent(s.name)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := s.store.RunGC(s.discardRatio)
			if err != nil {
				log.Warn().Err(err).Msg("value log GC failed")
				continue
			}
			if n > 0 {
				log.Debug().Int("rewritten", n).Msg("value log GC reclaimed files")
			}
		}
	}
}

// String implements fmt.Stringer for suture's log messages.
func (s *StoreGCService) String() string {
	return s.name
}
