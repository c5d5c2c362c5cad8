// Quayside - Maritime Logistics Real-Time Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quayside

package store

import (
	"context"
	"errors"
	"fmt"
)

// User is the shape of a users record read by the auth gate.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

// ActivityLog records one allowed domain update.
type ActivityLog struct {
	ID        string      `json:"id,omitempty"`
	UserID    string      `json:"userId"`
	UserName  string      `json:"userName"`
	Action    string      `json:"action"`
	EntityID  interface{} `json:"entityId,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// EnsureUsers inserts each user whose id is not stored yet. Existing records
// are left alone so edits made at runtime survive restarts.
func EnsureUsers(ctx context.Context, s Store, users []User) (int, error) {
	created := 0
	for _, u := range users {
		_, err := s.FindOne(ctx, CollectionUsers, Filter{FieldID: u.ID})
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return created, fmt.Errorf("lookup user %s: %w", u.ID, err)
		}
		rec, err := Encode(u)
		if err != nil {
			return created, err
		}
		if _, err := s.Insert(ctx, CollectionUsers, rec); err != nil {
			return created, fmt.Errorf("insert user %s: %w", u.ID, err)
		}
		created++
	}
	return created, nil
}
