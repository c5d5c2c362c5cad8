// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package store

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. Insertion order is preserved
// so FindOne is deterministic.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	order []string
	byID  map[string]Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

func (s *MemoryStore) collection(name string) *memCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memCollection{byID: make(map[string]Record)}
		s.collections[name] = c
	}
	return c
}

// FindOne implements Store.
func (s *MemoryStore) FindOne(ctx context.Context, collection string, filter Filter) (Record, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nf, err := normalize(filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, ErrNotFound
	}
	if id, ok := nf[FieldID].(string); ok {
		rec, found := c.byID[id]
		if !found || !matches(rec, nf) {
			return nil, ErrNotFound
		}
		return copyRecord(rec), nil
	}
	for _, id := range c.order {
		if rec := c.byID[id]; matches(rec, nf) {
			return copyRecord(rec), nil
		}
	}
	return nil, ErrNotFound
}

// Insert implements Store.
func (s *MemoryStore) Insert(ctx context.Context, collection string, rec Record) (Record, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := prepareInsert(rec)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	if _, exists := c.byID[out.ID()]; exists {
		return nil, ErrDuplicateID
	}
	c.byID[out.ID()] = out
	c.order = append(c.order, out.ID())
	return copyRecord(out), nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, patch Record) (Record, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, ErrNotFound
	}
	base, ok := c.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out, err := merge(base, patch)
	if err != nil {
		return nil, err
	}
	c.byID[id] = out
	return copyRecord(out), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// copyRecord is shallow; nested values are never mutated in place.
func copyRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
