package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spotifetch/spotifetch/internal/domain/play"
)

// Rollup queries group the event log, count rows per group and keep one
// representative row's descriptive fields. Descriptive fields are expected
// to be stable for a given key, so which row represents the group does not
// matter. Ties on play count break lexicographically by name so results are
// deterministic across storage engines.

// TopTracks returns the identity's most played tracks, ordered by play
// count descending.
func (s *Store) TopTracks(ctx context.Context, identity string, limit int, since *time.Time) ([]play.TrackRank, error) {
	query := `
		SELECT track_id, track_name, artist_name, album_name, album_image_url, COUNT(*) AS play_count
		FROM play_events
		WHERE user_id = ?
	`
	args := []any{identity}
	if since != nil {
		query += ` AND played_at >= ?`
		args = append(args, since.UTC().UnixMilli())
	}
	query += `
		GROUP BY track_id
		ORDER BY play_count DESC, track_name COLLATE NOCASE ASC
		LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query top tracks")
	}
	defer rows.Close()

	var ranks []play.TrackRank
	for rows.Next() {
		var r play.TrackRank
		var image sql.NullString
		if err := rows.Scan(&r.TrackID, &r.TrackName, &r.ArtistName, &r.AlbumName, &image, &r.PlayCount); err != nil {
			return nil, errors.Wrap(err, "failed to scan track rank")
		}
		r.AlbumImageURL = image.String
		ranks = append(ranks, r)
	}
	return ranks, rows.Err()
}

// TopArtists returns the identity's most played artists, ordered by play
// count descending. The grouping key is the display-joined artist name.
// Artist images are not stored with events; the caller enriches them.
func (s *Store) TopArtists(ctx context.Context, identity string, limit int, since *time.Time) ([]play.ArtistRank, error) {
	query := `
		SELECT artist_name, COUNT(*) AS play_count
		FROM play_events
		WHERE user_id = ?
	`
	args := []any{identity}
	if since != nil {
		query += ` AND played_at >= ?`
		args = append(args, since.UTC().UnixMilli())
	}
	query += `
		GROUP BY artist_name
		ORDER BY play_count DESC, artist_name COLLATE NOCASE ASC
		LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query top artists")
	}
	defer rows.Close()

	var ranks []play.ArtistRank
	for rows.Next() {
		var r play.ArtistRank
		if err := rows.Scan(&r.ArtistName, &r.PlayCount); err != nil {
			return nil, errors.Wrap(err, "failed to scan artist rank")
		}
		ranks = append(ranks, r)
	}
	return ranks, rows.Err()
}

// TopAlbums returns the identity's most played albums, ordered by play
// count descending. The grouping key is the album name.
func (s *Store) TopAlbums(ctx context.Context, identity string, limit int, since *time.Time) ([]play.AlbumRank, error) {
	query := `
		SELECT album_name, artist_name, album_image_url, COUNT(*) AS play_count
		FROM play_events
		WHERE user_id = ?
	`
	args := []any{identity}
	if since != nil {
		query += ` AND played_at >= ?`
		args = append(args, since.UTC().UnixMilli())
	}
	query += `
		GROUP BY album_name
		ORDER BY play_count DESC, album_name COLLATE NOCASE ASC
		LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query top albums")
	}
	defer rows.Close()

	var ranks []play.AlbumRank
	for rows.Next() {
		var r play.AlbumRank
		var image sql.NullString
		if err := rows.Scan(&r.AlbumName, &r.ArtistName, &image, &r.PlayCount); err != nil {
			return nil, errors.Wrap(err, "failed to scan album rank")
		}
		r.AlbumImageURL = image.String
		ranks = append(ranks, r)
	}
	return ranks, rows.Err()
}
