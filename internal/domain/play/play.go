// Package play provides the playback domain entities.
package play

import (
	"strings"
	"time"
)

// Snapshot represents one sample of what is currently playing.
// It carries no information about whether the sample is a new play;
// that decision belongs to the change detector.
type Snapshot struct {
	Playing       bool      // Whether something is actively playing
	TrackID       string    // Spotify track ID (empty when nothing is playing)
	TrackName     string    // Track name
	Artists       []string  // Artist names, in display order
	AlbumName     string    // Album name
	AlbumImageURL string    // Album art URL (may be empty)
	ObservedAt    time.Time // When the sample was taken
}

// HasTrack reports whether the snapshot carries a playable track.
// Spotify returns Playing=true with a nil item for ads and local files,
// so both fields are checked.
func (s Snapshot) HasTrack() bool {
	return s.Playing && s.TrackID != ""
}

// Event builds the durable play event for this snapshot.
// Artist names are joined for display and the played-at timestamp is
// normalized to UTC.
func (s Snapshot) Event(identity string) Event {
	playedAt := s.ObservedAt
	if playedAt.IsZero() {
		playedAt = time.Now()
	}
	return Event{
		Identity:      identity,
		TrackID:       s.TrackID,
		TrackName:     s.TrackName,
		ArtistName:    strings.Join(s.Artists, ", "),
		AlbumName:     s.AlbumName,
		AlbumImageURL: s.AlbumImageURL,
		PlayedAt:      playedAt.UTC(),
	}
}

// Event represents one recorded play. Events are append-only: the triple
// (Identity, TrackID, PlayedAt) is globally unique and rows are never
// mutated after insertion.
type Event struct {
	Identity      string    // The tracked user
	TrackID       string    // Spotify track ID
	TrackName     string    // Track name
	ArtistName    string    // Display-joined artist names
	AlbumName     string    // Album name
	AlbumImageURL string    // Album art URL (may be empty)
	PlayedAt      time.Time // UTC timestamp of the play
}

// TrackRank is one row of a most-played-tracks rollup.
type TrackRank struct {
	TrackID       string
	TrackName     string
	ArtistName    string
	AlbumName     string
	AlbumImageURL string
	PlayCount     int
}

// ArtistRank is one row of a most-played-artists rollup.
type ArtistRank struct {
	ArtistName     string
	ArtistImageURL string
	PlayCount      int
}

// AlbumRank is one row of a most-played-albums rollup.
type AlbumRank struct {
	AlbumName     string
	ArtistName    string
	AlbumImageURL string
	PlayCount     int
}
