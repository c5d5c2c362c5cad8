// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/quayside/internal/metrics"
)

// BadgerStore persists records in BadgerDB under "<collection>:<id>" keys
// with JSON values.
type BadgerStore struct {
	db     *badger.DB
	ownsDB bool
}

// OpenBadgerStore opens a database at path. An empty path opens an
// in-memory database.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db, ownsDB: true}, nil
}

// NewBadgerStore wraps an existing database. Close leaves it open.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func recordKey(collection, id string) []byte {
	return []byte(collection + ":" + id)
}

func collectionPrefix(collection string) []byte {
	return []byte(collection + ":")
}

// FindOne implements Store. Lookups by id read one key; other filters scan
// the collection prefix.
func (s *BadgerStore) FindOne(ctx context.Context, collection string, filter Filter) (Record, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	nf, err := normalize(filter)
	if err != nil {
		return nil, err
	}

	var found Record
	err = s.db.View(func(txn *badger.Txn) error {
		if id, ok := nf[FieldID].(string); ok {
			rec, err := getRecord(txn, recordKey(collection, id))
			if err != nil {
				return err
			}
			if !matches(rec, nf) {
				return ErrNotFound
			}
			found = rec
			return nil
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := collectionPrefix(collection)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if matches(rec, nf) {
				found = rec
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Insert implements Store.
func (s *BadgerStore) Insert(ctx context.Context, collection string, rec Record) (Record, error) {
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
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		key := recordKey(collection, out.ID())
		if _, err := txn.Get(key); err == nil {
			return ErrDuplicateID
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check record: %w", err)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update implements Store. The read-merge-write runs in one transaction.
func (s *BadgerStore) Update(ctx context.Context, collection, id string, patch Record) (Record, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out Record
	err := s.db.Update(func(txn *badger.Txn) error {
		key := recordKey(collection, id)
		base, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		out, err = merge(base, patch)
		if err != nil {
			return err
		}
		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RunGC rewrites value log files until Badger finds nothing left to reclaim
// and returns the number of files rewritten. In-memory stores have no value
// log and return 0.
func (s *BadgerStore) RunGC(discardRatio float64) (int, error) {
	start := time.Now()
	rewritten := 0
	for {
		err := s.db.RunValueLogGC(discardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			break
		}
		if err != nil {
			metrics.RecordStoreOperation("gc", "value_log", time.Since(start), err)
			return rewritten, fmt.Errorf("run value log GC: %w", err)
		}
		rewritten++
	}
	metrics.RecordStoreOperation("gc", "value_log", time.Since(start), nil)
	return rewritten, nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func getRecord(txn *badger.Txn, key []byte) (Record, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	var rec Record
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
