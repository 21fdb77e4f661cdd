package historydb

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// KV is a string key-value table stored alongside history.
type KV struct {
	store *Store
}

// KV returns the key-value accessor.
func (s *Store) KV() *KV {
	return &KV{store: s}
}

// Get returns the value for key and whether it exists.
func (kv *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := kv.store.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to read key: key=%s", key)
	}
	return value, true, nil
}

// Set stores value under key.
func (kv *KV) Set(ctx context.Context, key, value string) error {
	_, err := kv.store.db.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, kv.store.clock().UnixNano())
	if err != nil {
		return errors.Wrapf(err, "failed to write key: key=%s", key)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (kv *KV) Delete(ctx context.Context, key string) error {
	if _, err := kv.store.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return errors.Wrapf(err, "failed to delete key: key=%s", key)
	}
	return nil
}
