// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package agent

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// reconnectPolicy yields min(base*decay^(n-1), max) for attempt n and stops
// once n exceeds maxAttempts. Not safe for concurrent use; the Agent calls it
// under its mutex.
type reconnectPolicy struct {
	b           *backoff.ExponentialBackOff
	attempts    int
	maxAttempts int
}

func newReconnectPolicy(base, maxDelay time.Duration, decay float64, maxAttempts int) *reconnectPolicy {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = decay
	b.MaxInterval = maxDelay
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return &reconnectPolicy{b: b, maxAttempts: maxAttempts}
}

// Next counts one scheduling call and returns its delay. ok is false once the
// ceiling is exceeded.
func (p *reconnectPolicy) Next() (delay time.Duration, attempt int, ok bool) {
	p.attempts++
	if p.attempts > p.maxAttempts {
		return 0, p.attempts, false
	}
	delay = p.b.NextBackOff()
	if delay == backoff.Stop || delay > p.b.MaxInterval {
		delay = p.b.MaxInterval
	}
	return delay, p.attempts, true
}

// Reset restarts the sequence after a successful connect.
func (p *reconnectPolicy) Reset() {
	p.attempts = 0
	p.b.Reset()
}

// Attempts returns the number of scheduling calls since the last Reset.
func (p *reconnectPolicy) Attempts() int { return p.attempts }
