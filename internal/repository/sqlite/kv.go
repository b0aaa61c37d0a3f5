package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/task-master/internal/apperror"
	"github.com/sakif/task-master/internal/repository"
)

// compile-time check that *DB implements repository.KeyValueStore
var _ repository.KeyValueStore = (*DB)(nil)

// Get returns the raw JSON stored under key.
// A missing row is translated to apperror.NotFound so repository.Read can
// fall back to its default.
func (db *DB) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ?`, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("key", key)
		}
		return nil, fmt.Errorf("sqlite: getting %s: %w", key, err)
	}
	return []byte(value), nil
}

// Set writes value under key, replacing any previous value.
//
// UPSERT:
// ON CONFLICT(key) DO UPDATE keeps it a single statement, so a crash can
// never leave a key half-written.
func (db *DB) Set(ctx context.Context, key string, value []byte) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		string(value),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a key that doesn't exist is not an error:
// the end state ("key absent") is the same either way.
func (db *DB) Delete(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: deleting %s: %w", key, err)
	}
	return nil
}
