// Package history exposes the read and write operations over recorded
// plays: manual recording, paginated listing and ranked rollups.
package history

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spotifetch/spotifetch/internal/domain/play"
)

var (
	// ErrNotPlaying is returned when a manual record is requested while
	// nothing with a track is currently playing.
	ErrNotPlaying = errors.New("history: nothing is playing")

	// ErrInvalidLimit is returned when a limit falls outside 1..100.
	ErrInvalidLimit = errors.New("history: limit must be between 1 and 100")
)

const (
	DefaultLimit = 20
	maxLimit     = 100
)

// Source supplies the live playback snapshot.
type Source interface {
	CurrentlyPlaying(ctx context.Context) (*play.Snapshot, error)
}

// Store is the persistence surface the service reads and writes.
type Store interface {
	Append(ctx context.Context, ev play.Event) (play.Event, error)
	List(ctx context.Context, identity string, skip, limit int, since *time.Time) ([]play.Event, error)
	TopTracks(ctx context.Context, identity string, limit int, since *time.Time) ([]play.TrackRank, error)
	TopArtists(ctx context.Context, identity string, limit int, since *time.Time) ([]play.ArtistRank, error)
	TopAlbums(ctx context.Context, identity string, limit int, since *time.Time) ([]play.AlbumRank, error)
}

// ArtworkResolver fills in artist images the rollup queries cannot provide.
type ArtworkResolver interface {
	ArtistImage(ctx context.Context, artistName string) string
}

type Service struct {
	source  Source
	store   Store
	artwork ArtworkResolver
	now     func() time.Time
}

func New(source Source, store Store, artwork ArtworkResolver) *Service {
	return &Service{
		source:  source,
		store:   store,
		artwork: artwork,
		now:     time.Now,
	}
}

// RecordIfPlaying captures the current playback as a play event for
// identity. Appending is idempotent, so recording the same play twice
// returns the already stored event.
func (s *Service) RecordIfPlaying(ctx context.Context, identity string) (play.Event, error) {
	snap, err := s.source.CurrentlyPlaying(ctx)
	if err != nil {
		return play.Event{}, err
	}
	if snap == nil || !snap.HasTrack() {
		return play.Event{}, ErrNotPlaying
	}

	ev := snap.Event(identity)
	if snap.ObservedAt.IsZero() {
		ev.PlayedAt = s.now().UTC()
	}

	stored, err := s.store.Append(ctx, ev)
	if err != nil {
		return play.Event{}, errors.Wrap(err, "failed to record play")
	}
	return stored, nil
}

// CurrentlyPlaying returns the live snapshot without recording it.
func (s *Service) CurrentlyPlaying(ctx context.Context) (*play.Snapshot, error) {
	return s.source.CurrentlyPlaying(ctx)
}

// List returns identity's plays, newest first.
func (s *Service) List(ctx context.Context, identity string, skip, limit int, since *time.Time) ([]play.Event, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	if skip < 0 {
		skip = 0
	}
	return s.store.List(ctx, identity, skip, limit, since)
}

func (s *Service) TopTracks(ctx context.Context, identity string, limit int, since *time.Time) ([]play.TrackRank, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	return s.store.TopTracks(ctx, identity, limit, since)
}

// TopArtists ranks artists by play count and resolves an image for each
// through the artwork chain.
func (s *Service) TopArtists(ctx context.Context, identity string, limit int, since *time.Time) ([]play.ArtistRank, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}

	ranks, err := s.store.TopArtists(ctx, identity, limit, since)
	if err != nil {
		return nil, err
	}
	if s.artwork != nil {
		for i := range ranks {
			ranks[i].ArtistImageURL = s.artwork.ArtistImage(ctx, ranks[i].ArtistName)
		}
	}
	return ranks, nil
}

func (s *Service) TopAlbums(ctx context.Context, identity string, limit int, since *time.Time) ([]play.AlbumRank, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	return s.store.TopAlbums(ctx, identity, limit, since)
}

func normalizeLimit(limit int) (int, error) {
	if limit == 0 {
		return DefaultLimit, nil
	}
	if limit < 1 || limit > maxLimit {
		return 0, ErrInvalidLimit
	}
	return limit, nil
}
