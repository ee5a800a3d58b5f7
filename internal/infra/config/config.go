// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	DB      DBConfig      `yaml:"db"`
	Poller  PollerConfig  `yaml:"poller"`
	Spotify SpotifyConfig `yaml:"spotify"`
	Artwork ArtworkConfig `yaml:"artwork"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
}

// DBConfig represents event store configuration.
type DBConfig struct {
	Path string `yaml:"path" default:"spotifetch.db"`
}

// PollerConfig represents ingestion loop configuration.
type PollerConfig struct {
	BaseIntervalSec int `yaml:"base_interval_seconds" default:"10" validate:"gte=1"`
	IdleIntervalSec int `yaml:"idle_interval_seconds" default:"30" validate:"gte=1"`
	MaxBackoffSec   int `yaml:"max_backoff_seconds" default:"300" validate:"gte=1"`
	DetectorTTLSec  int `yaml:"detector_ttl_seconds" default:"3600" validate:"gte=1"`
	GCEvery         int `yaml:"gc_every_iterations" default:"360" validate:"gte=1"`
}

// SpotifyConfig represents Spotify API configuration.
// The refresh token is optional at startup: until the user runs the auth
// tool, the poller idles and the manual record path reports unauthenticated.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
	RefreshToken string `yaml:"refresh_token"`
}

// ArtworkConfig represents artist image provider configuration.
type ArtworkConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig represents a single artwork provider configuration.
type ProviderConfig struct {
	Type     string         `yaml:"type" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// BaseInterval returns the poll interval as a duration.
func (c PollerConfig) BaseInterval() time.Duration {
	return time.Duration(c.BaseIntervalSec) * time.Second
}

// IdleInterval returns the no-credential sleep as a duration.
func (c PollerConfig) IdleInterval() time.Duration {
	return time.Duration(c.IdleIntervalSec) * time.Second
}

// MaxBackoff returns the backoff ceiling as a duration.
func (c PollerConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffSec) * time.Second
}

// DetectorTTL returns the change detector entry TTL as a duration.
func (c PollerConfig) DetectorTTL() time.Duration {
	return time.Duration(c.DetectorTTLSec) * time.Second
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Artwork.Providers {
			if c.Artwork.Providers[i].Type == "lastfm" {
				if c.Artwork.Providers[i].Settings == nil {
					c.Artwork.Providers[i].Settings = map[string]any{}
				}
				c.Artwork.Providers[i].Settings["api_key"] = v
				break
			}
		}
	}
	if v := os.Getenv("SPOTIFETCH_DB_PATH"); v != "" {
		c.DB.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
