// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package agent

import (
	"runtime/debug"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/quayside/internal/metrics"
	"github.com/tomtom215/quayside/internal/protocol"
)

// Handler receives the raw data of an event. Data is nil for events without
// a payload.
type Handler func(data json.RawMessage)

// Subscription identifies one registered handler for Off.
type Subscription struct {
	event protocol.EventName
	id    uint64
}

// Event returns the event the subscription listens to.
func (s Subscription) Event() protocol.EventName { return s.event }

type subscriber struct {
	id   uint64
	fn   Handler
	once bool
}

// Emitter is the in-process publish/subscribe multimap. A panicking handler
// is logged and skipped; its siblings still run.
type Emitter struct {
	log zerolog.Logger

	mu       sync.Mutex
	nextID   uint64
	handlers map[protocol.EventName][]subscriber
}

// NewEmitter creates an empty emitter.
func NewEmitter(log zerolog.Logger) *Emitter {
	return &Emitter{log: log, handlers: make(map[protocol.EventName][]subscriber)}
}

// On registers fn for event.
func (e *Emitter) On(event protocol.EventName, fn Handler) Subscription {
	return e.add(event, fn, false)
}

// Once registers fn for the next occurrence of event only.
func (e *Emitter) Once(event protocol.EventName, fn Handler) Subscription {
	return e.add(event, fn, true)
}

func (e *Emitter) add(event protocol.EventName, fn Handler, once bool) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.handlers[event] = append(e.handlers[event], subscriber{id: e.nextID, fn: fn, once: once})
	return Subscription{event: event, id: e.nextID}
}

// Off removes one handler. It reports whether the handler was registered.
func (e *Emitter) Off(sub Subscription) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.handlers[sub.event]
	for i, s := range list {
		if s.id == sub.id {
			e.handlers[sub.event] = append(list[:i:i], list[i+1:]...)
			if len(e.handlers[sub.event]) == 0 {
				delete(e.handlers, sub.event)
			}
			return true
		}
	}
	return false
}

// OffAll removes every handler of event.
func (e *Emitter) OffAll(event protocol.EventName) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, event)
}

// Count returns the number of handlers registered for event.
func (e *Emitter) Count(event protocol.EventName) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[event])
}

// Dispatch runs every handler of event in registration order and returns how
// many ran. Handlers registered or removed during dispatch take effect on the
// next call.
func (e *Emitter) Dispatch(event protocol.EventName, data json.RawMessage) int {
	e.mu.Lock()
	list := e.handlers[event]
	snapshot := make([]subscriber, len(list))
	copy(snapshot, list)
	kept := list[:0:0]
	for _, s := range list {
		if !s.once {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(e.handlers, event)
	} else if len(kept) != len(list) {
		e.handlers[event] = kept
	}
	e.mu.Unlock()

	for _, s := range snapshot {
		e.call(event, s, data)
	}
	return len(snapshot)
}

func (e *Emitter) call(event protocol.EventName, s subscriber, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			metrics.AgentHandlerPanics.Inc()
			e.log.Error().
				Str("event", string(event)).
				Uint64("handler", s.id).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("event handler panicked")
		}
	}()
	s.fn(data)
}
