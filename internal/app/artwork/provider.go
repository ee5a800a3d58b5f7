// Package artwork provides artist image lookup strategies.
package artwork

import (
	"context"
)

// Provider is the interface for artist image providers.
// Different implementations resolve images through various services
// (Last.fm metadata, Spotify search, etc.).
type Provider interface {
	// ArtistImage resolves an image URL for the artist name.
	// An empty URL with a nil error means the provider knows the artist
	// but has no image for it.
	ArtistImage(ctx context.Context, artistName string) (string, error)

	// Name returns the provider name (used in config).
	Name() string
}
