// Package historydb provides SQLite persistence for generation history and
// small key-value records such as the auth token.
package historydb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/osa030/mobiletts/internal/domain/history"
	"github.com/osa030/mobiletts/internal/domain/segment"
)

// ErrNotFound is returned when a history entry does not exist.
var ErrNotFound = errors.New("history entry not found")

// Config represents history database configuration.
type Config struct {
	Path       string // Database file; ":memory:" keeps everything in memory
	MaxEntries int    // Entries kept after each save; 0 keeps everything
}

// Store is a SQLite-backed history store.
type Store struct {
	db    *sql.DB
	cfg   Config
	clock func() time.Time
}

// Open opens (creating if needed) the database at cfg.Path.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("history database path is required")
	}

	dsn := ":memory:"
	if cfg.Path != ":memory:" {
		dir := filepath.Dir(cfg.Path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(err, "failed to create data dir")
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite")
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping sqlite")
	}

	s := &Store{db: db, cfg: cfg, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	zlog.Debug().Msgf("historydb: opened: path=%s max_entries=%d", cfg.Path, cfg.MaxEntries)
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS history (
    id TEXT PRIMARY KEY,
    text TEXT NOT NULL,
    voice TEXT NOT NULL,
    speed REAL NOT NULL,
    audio BLOB,
    timing TEXT NOT NULL,
    duration REAL NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at);
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "failed to initialize schema")
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces entry and applies MaxEntries pruning.
func (s *Store) Save(ctx context.Context, entry history.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock()
	}
	segs := entry.TimingSegments
	if segs == nil {
		segs = []segment.Segment{}
	}
	timing, err := json.Marshal(segs)
	if err != nil {
		return errors.Wrap(err, "failed to encode timing")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO history(id, text, voice, speed, audio, timing, duration, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET text=excluded.text, voice=excluded.voice, speed=excluded.speed,
		   audio=excluded.audio, timing=excluded.timing, duration=excluded.duration, created_at=excluded.created_at`,
		entry.ID, entry.Text, entry.Voice, entry.Speed, entry.Audio, string(timing), entry.Duration, entry.CreatedAt.UnixNano())
	if err != nil {
		return errors.Wrap(err, "failed to save history entry")
	}

	if s.cfg.MaxEntries > 0 {
		res, err := tx.ExecContext(ctx, `DELETE FROM history WHERE id IN (
			SELECT id FROM history ORDER BY created_at DESC, rowid DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxEntries)
		if err != nil {
			return errors.Wrap(err, "failed to prune history")
		}
		if n, _ := res.RowsAffected(); n > 0 {
			zlog.Debug().Msgf("historydb: pruned entries: count=%d", n)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit history entry")
	}
	return nil
}

// List returns all entries, newest first.
func (s *Store) List(ctx context.Context) ([]history.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, voice, speed, audio, timing, duration, created_at
		 FROM history ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list history")
	}
	defer rows.Close()

	entries := []history.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list history")
	}
	return entries, nil
}

// Get returns the entry with id.
func (s *Store) Get(ctx context.Context, id string) (history.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, text, voice, speed, audio, timing, duration, created_at
		 FROM history WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return history.Entry{}, errors.Wrapf(ErrNotFound, "id=%s", id)
	}
	return e, err
}

// Delete removes the entry with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete history entry")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "id=%s", id)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count history")
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (history.Entry, error) {
	var (
		e       history.Entry
		timing  string
		created int64
	)
	if err := row.Scan(&e.ID, &e.Text, &e.Voice, &e.Speed, &e.Audio, &timing, &e.Duration, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return history.Entry{}, err
		}
		return history.Entry{}, errors.Wrap(err, "failed to scan history entry")
	}
	if err := json.Unmarshal([]byte(timing), &e.TimingSegments); err != nil {
		return history.Entry{}, errors.Wrapf(err, "failed to decode timing: id=%s", e.ID)
	}
	e.CreatedAt = time.Unix(0, created)
	return e, nil
}
