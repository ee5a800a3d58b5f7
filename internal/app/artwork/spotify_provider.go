package artwork

import (
	"context"
)

// SpotifyClient defines the interface for Spotify operations needed by the
// spotify artwork provider.
type SpotifyClient interface {
	ArtistImageURL(ctx context.Context, name string) (string, error)
}

// SpotifyProvider resolves artist images through Spotify artist search.
// It reuses the service's existing Spotify credential, so it needs no
// settings of its own.
type SpotifyProvider struct {
	client SpotifyClient
}

// NewSpotifyProvider creates a new SpotifyProvider.
func NewSpotifyProvider(client SpotifyClient) *SpotifyProvider {
	return &SpotifyProvider{client: client}
}

// ArtistImage resolves the artist image via Spotify search.
func (p *SpotifyProvider) ArtistImage(ctx context.Context, artistName string) (string, error) {
	return p.client.ArtistImageURL(ctx, artistName)
}

// Name returns the provider name.
func (p *SpotifyProvider) Name() string {
	return "spotify"
}
