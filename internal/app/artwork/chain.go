package artwork

import (
	"context"
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// Chain tries multiple providers in order until one resolves an image.
// Results, including misses, are cached in-process: artist images are
// decoration on rollup responses and staleness is acceptable.
type Chain struct {
	providers []Provider

	cacheMu sync.RWMutex
	cache   map[string]string
}

// NewChain creates a new provider chain.
func NewChain(providers []Provider) *Chain {
	return &Chain{
		providers: providers,
		cache:     make(map[string]string),
	}
}

// ArtistImage resolves an image URL for the artist, or an empty string when
// no provider has one. Provider failures are logged and skipped; resolution
// never fails the caller.
func (c *Chain) ArtistImage(ctx context.Context, artistName string) string {
	if artistName == "" || len(c.providers) == 0 {
		return ""
	}

	c.cacheMu.RLock()
	cached, ok := c.cache[artistName]
	c.cacheMu.RUnlock()
	if ok {
		return cached
	}

	var imageURL string
	for _, p := range c.providers {
		url, err := p.ArtistImage(ctx, artistName)
		if err != nil {
			zlog.Warn().Msgf("artwork: provider failed, trying next: provider=%s artist=%s error=%v",
				p.Name(), artistName, err)
			continue
		}
		if url != "" {
			imageURL = url
			break
		}
	}

	c.cacheMu.Lock()
	c.cache[artistName] = imageURL
	c.cacheMu.Unlock()

	return imageURL
}
