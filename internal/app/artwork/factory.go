package artwork

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/spotifetch/spotifetch/internal/infra/config"
)

// NewChainFromConfig creates a provider chain from configuration.
// An empty provider list is valid: the chain then resolves nothing and
// rollups carry empty artist images.
func NewChainFromConfig(cfg *config.Config, spotify SpotifyClient) (*Chain, error) {
	var providers []Provider

	for i, pcfg := range cfg.Artwork.Providers {
		var provider Provider
		var err error

		switch pcfg.Type {
		case "lastfm":
			provider, err = NewLastFmProvider(pcfg.Settings)

		case "spotify":
			provider = NewSpotifyProvider(spotify)

		default:
			return nil, errors.Newf("unsupported artwork provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create artwork provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, provider)
		zlog.Info().Msgf("registered artwork provider: index=%d type=%s", i+1, pcfg.Type)
	}

	return NewChain(providers), nil
}
