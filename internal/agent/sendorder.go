// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package agent

import "sync"

// sendOrder serializes transport writes in the order their turns were
// claimed. Every claim must be followed by wait and then done.
type sendOrder struct {
	mu      sync.Mutex
	cond    *sync.Cond
	next    uint64
	serving uint64
}

func newSendOrder() *sendOrder {
	o := &sendOrder{}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// claim reserves the next turn.
func (o *sendOrder) claim() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	turn := o.next
	o.next++
	return turn
}

// wait blocks until turn is being served.
func (o *sendOrder) wait(turn uint64) {
	o.mu.Lock()
	for o.serving != turn {
		o.cond.Wait()
	}
	o.mu.Unlock()
}

// done ends the current turn.
func (o *sendOrder) done() {
	o.mu.Lock()
	o.serving++
	o.cond.Broadcast()
	o.mu.Unlock()
}
