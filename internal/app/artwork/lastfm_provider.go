package artwork

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/spotifetch/spotifetch/internal/infra/lastfm"
)

// LastFmClient defines the interface for Last.fm operations.
type LastFmClient interface {
	GetArtistInfo(ctx context.Context, artistName string) (*lastfm.ArtistInfo, error)
}

// LastFmProviderConfig holds the lastfm provider settings.
type LastFmProviderConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key" validate:"required"`
}

// LastFmProvider resolves artist images from Last.fm artist metadata.
type LastFmProvider struct {
	client LastFmClient
}

// NewLastFmProvider creates a new LastFmProvider from config settings.
func NewLastFmProvider(settings map[string]any) (*LastFmProvider, error) {
	var config LastFmProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode lastfm provider settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(&config); err != nil {
		return nil, errors.Wrap(err, "invalid lastfm provider settings")
	}

	client, err := lastfm.New(lastfm.Config{APIKey: config.APIKey})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}

	return &LastFmProvider{client: client}, nil
}

// NewLastFmProviderWithClient creates a LastFmProvider with an existing
// client. Used by tests.
func NewLastFmProviderWithClient(client LastFmClient) *LastFmProvider {
	return &LastFmProvider{client: client}
}

// ArtistImage resolves the artist image via artist.getInfo.
func (p *LastFmProvider) ArtistImage(ctx context.Context, artistName string) (string, error) {
	info, err := p.client.GetArtistInfo(ctx, artistName)
	if err != nil {
		return "", err
	}
	return info.ImageURL, nil
}

// Name returns the provider name.
func (p *LastFmProvider) Name() string {
	return "lastfm"
}
