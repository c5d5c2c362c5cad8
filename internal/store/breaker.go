// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package store

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/quayside/internal/logging"
	"github.com/tomtom215/quayside/internal/metrics"
)

// BreakerConfig tunes the circuit breaker around a Store.
type BreakerConfig struct {
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval resets the failure counts while closed.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig returns conservative defaults for a local store.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "record-store",
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// BreakerStore guards a Store with a circuit breaker and records metrics for
// every call. ErrNotFound and ErrDuplicateID are answers, not failures, and
// never count toward tripping.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[Record]
	name string
}

// NewBreakerStore wraps next.
func NewBreakerStore(next Store, cfg BreakerConfig) *BreakerStore {
	if cfg.Name == "" {
		cfg.Name = DefaultBreakerConfig().Name
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}
	threshold := cfg.ConsecutiveFailures

	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cfg.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[Record](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= threshold
			if trip {
				logging.Warn().
					Str("breaker", cfg.Name).
					Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Msg("opening store circuit")
			}
			return trip
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateID) ||
				errors.Is(err, ErrInvalidCollection) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", stateToString(from)).Str("to", stateToString(to)).
				Msg("store circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &BreakerStore{next: next, cb: cb, name: cfg.Name}
}

func (b *BreakerStore) execute(operation, collection string, fn func() (Record, error)) (Record, error) {
	start := time.Now()
	rec, err := b.cb.Execute(fn)
	metrics.RecordStoreOperation(operation, collection, time.Since(start), err)

	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(0)
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(float64(b.cb.Counts().ConsecutiveFailures))
	}
	return rec, err
}

// FindOne implements Store.
func (b *BreakerStore) FindOne(ctx context.Context, collection string, filter Filter) (Record, error) {
	return b.execute("find_one", collection, func() (Record, error) {
		return b.next.FindOne(ctx, collection, filter)
	})
}

// Insert implements Store.
func (b *BreakerStore) Insert(ctx context.Context, collection string, rec Record) (Record, error) {
	return b.execute("insert", collection, func() (Record, error) {
		return b.next.Insert(ctx, collection, rec)
	})
}

// Update implements Store.
func (b *BreakerStore) Update(ctx context.Context, collection, id string, patch Record) (Record, error) {
	return b.execute("update", collection, func() (Record, error) {
		return b.next.Update(ctx, collection, id, patch)
	})
}

// Close implements Store.
func (b *BreakerStore) Close() error { return b.next.Close() }

// State returns the breaker state for health reporting.
func (b *BreakerStore) State() string { return stateToString(b.cb.State()) }

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
