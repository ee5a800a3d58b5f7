// Package spotify provides the playback source and credential handling
// for the Spotify API.
package spotify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/spotifetch/spotifetch/internal/domain/play"
)

// Errors
var (
	// ErrNotAuthenticated means no refresh token is configured yet: the
	// user has never run the auth tool. Callers are expected to idle and
	// retry rather than fail.
	ErrNotAuthenticated = errors.New("spotify: not authenticated")
)

// Scopes required to observe playback.
var scopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopeUserReadRecentlyPlayed,
}

// Client is a Spotify API client. The underlying oauth2 transport refreshes
// the access token transparently from the configured refresh token; a
// rejected refresh (revoked grant) surfaces as an auth error on the call.
type Client struct {
	mu           sync.Mutex
	api          *spotify.Client
	auth         *spotifyauth.Authenticator
	refreshToken string
	userID       string

	now func() time.Time
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string // optional; empty means not authenticated yet
}

// New creates a new Spotify client.
func New(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify client credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(scopes...),
	)

	return &Client{
		auth:         auth,
		refreshToken: cfg.RefreshToken,
		now:          time.Now,
	}, nil
}

// apiClient returns the authenticated API client, building it on first use.
func (c *Client) apiClient(ctx context.Context) (*spotify.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refreshToken == "" {
		return nil, ErrNotAuthenticated
	}
	if c.api == nil {
		token := &oauth2.Token{RefreshToken: c.refreshToken}
		c.api = spotify.New(c.auth.Client(ctx, token), spotify.WithRetry(true))
	}
	return c.api, nil
}

// CurrentlyPlaying samples the user's current playback. A paused or empty
// player yields a stopped snapshot, not an error.
func (c *Client) CurrentlyPlaying(ctx context.Context) (*play.Snapshot, error) {
	api, err := c.apiClient(ctx)
	if err != nil {
		return nil, err
	}

	cp, err := api.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get current playback")
	}

	snap := snapshotFrom(cp, c.now())
	return &snap, nil
}

// CurrentUserID returns the Spotify user ID of the authenticated user.
// The ID is cached after the first successful lookup.
func (c *Client) CurrentUserID(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.userID
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	api, err := c.apiClient(ctx)
	if err != nil {
		return "", err
	}

	user, err := api.CurrentUser(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to get current user")
	}

	c.mu.Lock()
	c.userID = user.ID
	c.mu.Unlock()
	return user.ID, nil
}

// ArtistImageURL looks up an artist's image by name, returning an empty
// string when the artist has no image.
func (c *Client) ArtistImageURL(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", errors.New("artist name is required")
	}

	api, err := c.apiClient(ctx)
	if err != nil {
		return "", err
	}

	result, err := api.Search(ctx, name, spotify.SearchTypeArtist, spotify.Limit(1))
	if err != nil {
		return "", errors.Wrap(err, "failed to search artist")
	}
	if result.Artists == nil || len(result.Artists.Artists) == 0 {
		return "", nil
	}

	images := result.Artists.Artists[0].Images
	if len(images) == 0 {
		return "", nil
	}
	return images[0].URL, nil
}

// snapshotFrom converts a Spotify playback response to a domain snapshot.
// Missing fields (no album art, nil item) degrade to zero values.
func snapshotFrom(cp *spotify.CurrentlyPlaying, observedAt time.Time) play.Snapshot {
	if cp == nil || !cp.Playing || cp.Item == nil {
		return play.Snapshot{ObservedAt: observedAt}
	}

	item := cp.Item
	artists := make([]string, len(item.Artists))
	for i, a := range item.Artists {
		artists[i] = a.Name
	}

	var albumImage string
	if len(item.Album.Images) > 0 {
		albumImage = item.Album.Images[0].URL
	}

	return play.Snapshot{
		Playing:       true,
		TrackID:       string(item.ID),
		TrackName:     item.Name,
		Artists:       artists,
		AlbumName:     item.Album.Name,
		AlbumImageURL: albumImage,
		ObservedAt:    observedAt,
	}
}

// IsAuthError reports whether an API error is credential-related: the
// refresh token was revoked or the grant is otherwise invalid. These need
// the user to re-authenticate, unlike transient upstream failures.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotAuthenticated) {
		return true
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "invalid_client") ||
		strings.Contains(errStr, "token revoked") ||
		strings.Contains(errStr, "401")
}
