// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

// Package store is the record store the hub persists into: users,
// direct messages, notifications and activity logs.
//
// Records are schemaless JSON objects. Every backend normalizes values through
// a JSON round trip on write, so filters compare the same way whether a record
// lives in memory or in Badger (numbers become float64, structs become maps).
package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Collections used by the hub.
const (
	CollectionUsers         = "users"
	CollectionMessages      = "messages"
	CollectionNotifications = "notifications"
	CollectionActivityLogs  = "activity_logs"
)

// FieldID is the primary key of every record.
const FieldID = "id"

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateID is returned by Insert when the id is taken.
	ErrDuplicateID = errors.New("record id already exists")
	// ErrInvalidCollection is returned for an empty collection name.
	ErrInvalidCollection = errors.New("invalid collection name")
)

// Record is one stored object.
type Record map[string]interface{}

// ID returns the record id, or "" if absent.
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// Filter selects records whose fields equal every filter value.
type Filter map[string]interface{}

// Store is the collaborator the hub calls into.
type Store interface {
	// FindOne returns the first record matching filter, or ErrNotFound.
	FindOne(ctx context.Context, collection string, filter Filter) (Record, error)
	// Insert stores rec, assigning an id if missing, and returns the stored copy.
	Insert(ctx context.Context, collection string, rec Record) (Record, error)
	// Update merges patch into the record with the given id and returns the result.
	Update(ctx context.Context, collection, id string, patch Record) (Record, error)
	// Close releases backend resources.
	Close() error
}

// Config selects and tunes a backend.
type Config struct {
	Backend string
	Path    string
}

// Open builds the configured backend.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendBadger:
		return OpenBadgerStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// normalize deep-copies v through JSON so stored values have canonical types.
func normalize(v interface{}) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	if rec == nil {
		rec = Record{}
	}
	return rec, nil
}

// prepareInsert normalizes rec and assigns an id.
func prepareInsert(rec Record) (Record, error) {
	out, err := normalize(rec)
	if err != nil {
		return nil, err
	}
	if out.ID() == "" {
		out[FieldID] = uuid.NewString()
	}
	return out, nil
}

// merge applies patch over base. The id field is never overwritten.
func merge(base, patch Record) (Record, error) {
	np, err := normalize(patch)
	if err != nil {
		return nil, err
	}
	out := make(Record, len(base)+len(np))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range np {
		if k == FieldID {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// matches reports whether rec satisfies an already-normalized filter.
func matches(rec Record, filter Record) bool {
	for k, want := range filter {
		got, ok := rec[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func checkCollection(collection string) error {
	if collection == "" {
		return ErrInvalidCollection
	}
	return nil
}

// Decode converts a record into a typed value.
func Decode(rec Record, v interface{}) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// Encode converts a typed value into a record.
func Encode(v interface{}) (Record, error) {
	return normalize(v)
}
