// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package agent

import (
	"time"

	"github.com/tomtom215/quayside/internal/metrics"
	"github.com/tomtom215/quayside/internal/protocol"
)

// QueuedMessage is an outbound event held while disconnected.
type QueuedMessage struct {
	Event     protocol.EventName
	Frame     []byte
	Timestamp time.Time
}

// Queue holds outbound events in enqueue order. Entries older than the
// retention window are discarded at drain time; when full, the oldest entry
// makes room. Not safe for concurrent use.
type Queue struct {
	retention time.Duration
	max       int
	items     []QueuedMessage
}

// NewQueue creates a queue. max <= 0 means unbounded.
func NewQueue(retention time.Duration, max int) *Queue {
	return &Queue{retention: retention, max: max}
}

// Push appends m and reports whether an older entry was dropped for room.
func (q *Queue) Push(m QueuedMessage) (dropped bool) {
	if q.max > 0 && len(q.items) >= q.max {
		q.items = q.items[1:]
		metrics.RecordQueueDrop("overflow", 1)
		dropped = true
	}
	q.items = append(q.items, m)
	metrics.AgentQueueDepth.Set(float64(len(q.items)))
	return dropped
}

// PushFront puts entries back ahead of anything queued since, preserving
// their order. Used when a flush is cut short.
func (q *Queue) PushFront(ms []QueuedMessage) {
	if len(ms) == 0 {
		return
	}
	items := make([]QueuedMessage, 0, len(ms)+len(q.items))
	items = append(items, ms...)
	items = append(items, q.items...)
	if q.max > 0 && len(items) > q.max {
		metrics.RecordQueueDrop("overflow", len(items)-q.max)
		items = items[len(items)-q.max:]
	}
	q.items = items
	metrics.AgentQueueDepth.Set(float64(len(q.items)))
}

// Drain empties the queue and returns the entries younger than the retention
// window at now, in enqueue order, plus the number of stale entries dropped.
func (q *Queue) Drain(now time.Time) (fresh []QueuedMessage, stale int) {
	for _, m := range q.items {
		if q.retention > 0 && now.Sub(m.Timestamp) > q.retention {
			stale++
			continue
		}
		fresh = append(fresh, m)
	}
	q.items = nil
	metrics.AgentQueueDepth.Set(0)
	if stale > 0 {
		metrics.RecordQueueDrop("stale", stale)
	}
	return fresh, stale
}

// Len returns the number of queued entries.
func (q *Queue) Len() int { return len(q.items) }
