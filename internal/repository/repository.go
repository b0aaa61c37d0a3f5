// Package repository defines the persistence contract used by the stores.
//
// THE KEY-VALUE MODEL:
// All application state lives under a handful of string keys, each holding
// one JSON document:
//
//	users_db              → []model.User
//	current_user          → model.Session (absent when logged out)
//	<userId>_todos        → []model.Task
//	<userId>_history      → []model.HistoryLog
//	<userId>_categories   → []string
//
// Writes always replace the whole value of a key. There are no partial
// updates and no batching, so a backend only needs Get/Set/Delete.
//
// Implementations live in sub-packages (sqlite, memory). The stores only see
// the KeyValueStore interface, so a file or remote backend can be swapped in
// from server.New without touching service code.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sakif/task-master/internal/apperror"
)

// Fixed keys shared by all users.
const (
	UsersKey   = "users_db"
	SessionKey = "current_user"
)

// TodosKey returns the key of a user's task list.
func TodosKey(userID string) string { return userID + "_todos" }

// HistoryKey returns the key of a user's activity log.
func HistoryKey(userID string) string { return userID + "_history" }

// CategoriesKey returns the key of a user's category list.
func CategoriesKey(userID string) string { return userID + "_categories" }

// KeyValueStore is a durable string-keyed store of raw JSON documents.
//
// Get returns an error wrapping apperror.ErrNotFound when the key has never
// been written (or was deleted). Delete of an absent key is not an error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Read loads the JSON value stored under key into a T.
// If the key is absent, def is returned with a nil error.
func Read[T any](ctx context.Context, kv KeyValueStore, key string, def T) (T, error) {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return def, nil
		}
		return def, fmt.Errorf("repository: reading %q: %w", key, err)
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return def, fmt.Errorf("repository: decoding %q: %w", key, err)
	}
	return v, nil
}

// Write stores v as the complete JSON value of key.
func Write[T any](ctx context.Context, kv KeyValueStore, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("repository: encoding %q: %w", key, err)
	}
	if err := kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("repository: writing %q: %w", key, err)
	}
	return nil
}
