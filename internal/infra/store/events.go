package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spotifetch/spotifetch/internal/domain/play"
)

// Append inserts the play event if it is not already recorded and returns
// the canonical stored row.
//
// A duplicate (user_id, track_id, played_at) is absorbed silently: polling
// jitter and the manual record path are both expected to re-observe the same
// transition. The row is re-read after the insert because a concurrent
// writer may have won the race.
func (s *Store) Append(ctx context.Context, ev play.Event) (play.Event, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO play_events (user_id, track_id, track_name, artist_name, album_name, album_image_url, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, track_id, played_at) DO NOTHING
	`,
		ev.Identity,
		ev.TrackID,
		ev.TrackName,
		ev.ArtistName,
		ev.AlbumName,
		nullString(ev.AlbumImageURL),
		ev.PlayedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return play.Event{}, errors.Wrap(err, "failed to insert play event")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, track_id, track_name, artist_name, album_name, album_image_url, played_at
		FROM play_events
		WHERE user_id = ? AND track_id = ? AND played_at = ?
	`,
		ev.Identity,
		ev.TrackID,
		ev.PlayedAt.UTC().UnixMilli(),
	)

	stored, err := scanEvent(row)
	if err != nil {
		return play.Event{}, errors.Wrap(err, "failed to read back play event")
	}
	return stored, nil
}

// List returns the identity's play events sorted by played_at descending,
// optionally restricted to events at or after since, paginated by
// (skip, limit). It is a pure function of its parameters; no cursor state
// is retained between calls.
func (s *Store) List(ctx context.Context, identity string, skip, limit int, since *time.Time) ([]play.Event, error) {
	query := `
		SELECT user_id, track_id, track_name, artist_name, album_name, album_image_url, played_at
		FROM play_events
		WHERE user_id = ?
	`
	args := []any{identity}
	if since != nil {
		query += ` AND played_at >= ?`
		args = append(args, since.UTC().UnixMilli())
	}
	query += ` ORDER BY played_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, skip)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query play events")
	}
	defer rows.Close()

	var events []play.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan play event")
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// LatestPlayedAt returns the played_at of the identity's most recent event,
// or nil when no events exist. Used by incremental-sync callers to skip
// already-ingested plays.
func (s *Store) LatestPlayedAt(ctx context.Context, identity string) (*time.Time, error) {
	var millis int64
	err := s.db.QueryRowContext(ctx, `
		SELECT played_at FROM play_events
		WHERE user_id = ?
		ORDER BY played_at DESC LIMIT 1
	`, identity).Scan(&millis)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // nil means no events yet, not an error
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query latest play")
	}
	t := time.UnixMilli(millis).UTC()
	return &t, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (play.Event, error) {
	var ev play.Event
	var image sql.NullString
	var millis int64

	if err := row.Scan(&ev.Identity, &ev.TrackID, &ev.TrackName, &ev.ArtistName, &ev.AlbumName, &image, &millis); err != nil {
		return play.Event{}, err
	}
	ev.AlbumImageURL = image.String
	ev.PlayedAt = time.UnixMilli(millis).UTC()
	return ev, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
