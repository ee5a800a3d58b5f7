// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	// Cache for artist info lookups
	artistCache map[string]*ArtistInfo
	cacheMu     sync.RWMutex
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey string
}

// ArtistInfo represents artist metadata from Last.fm.
type ArtistInfo struct {
	Name     string
	URL      string
	ImageURL string
}

// getArtistInfoResponse represents the response from artist.getInfo API.
type getArtistInfoResponse struct {
	Artist struct {
		Name  string `json:"name"`
		URL   string `json:"url"`
		Image []struct {
			URL  string `json:"#text"`
			Size string `json:"size"`
		} `json:"image"`
	} `json:"artist"`
}

// apiError represents an error response from Last.fm API.
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}

	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     "https://ws.audioscrobbler.com/2.0/",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		artistCache: make(map[string]*ArtistInfo),
	}, nil
}

// GetArtistInfo retrieves artist metadata by name.
// Reference: https://www.last.fm/api/show/artist.getInfo
func (c *Client) GetArtistInfo(ctx context.Context, artistName string) (*ArtistInfo, error) {
	if artistName == "" {
		return nil, errors.New("artist name is required")
	}

	c.cacheMu.RLock()
	cached, ok := c.artistCache[artistName]
	c.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	params := url.Values{}
	params.Set("method", "artist.getInfo")
	params.Set("api_key", c.apiKey)
	params.Set("artist", artistName)
	params.Set("autocorrect", "1")
	params.Set("format", "json")

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != 0 {
		return nil, errors.Newf("last.fm API error %d: %s", apiErr.Error, apiErr.Message)
	}

	var resp getArtistInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to parse artist info response")
	}

	info := &ArtistInfo{
		Name: resp.Artist.Name,
		URL:  resp.Artist.URL,
	}
	// Prefer the largest image; Last.fm orders sizes small to large.
	for _, img := range resp.Artist.Image {
		if img.URL != "" {
			info.ImageURL = img.URL
		}
	}

	c.cacheMu.Lock()
	c.artistCache[artistName] = info
	c.cacheMu.Unlock()

	return info, nil
}

// get performs a GET request against the Last.fm API.
func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "last.fm request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("last.fm returned status %d: %s", resp.StatusCode, fmt.Sprintf("%.200s", string(body)))
	}

	return body, nil
}
