// Package store provides the durable play event store backed by SQLite.
package store

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite" // SQLite driver
)

// Store is the append-mostly play event log.
//
// Uniqueness of (user_id, track_id, played_at) is enforced by the storage
// engine, not by a check-then-insert: concurrent writers observing the same
// transition converge on a single row.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the store at the given path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// WAL keeps readers unblocked while the poller writes; busy_timeout
	// makes a second writer wait instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		PRAGMA synchronous = NORMAL;
	`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set pragmas")
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS play_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			track_id TEXT NOT NULL,
			track_name TEXT NOT NULL,
			artist_name TEXT NOT NULL,
			album_name TEXT NOT NULL,
			album_image_url TEXT,
			played_at INTEGER NOT NULL,
			UNIQUE(user_id, track_id, played_at)
		);

		-- Serves both the newest-first history listing and the
		-- most-recent-event lookup; no separate index is needed.
		CREATE INDEX IF NOT EXISTS idx_play_events_user_played
			ON play_events(user_id, played_at DESC);
	`)
	return err
}
