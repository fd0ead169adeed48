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

// Engine types
const (
	EngineSpotify   = "spotify"
	EngineSimulated = "simulated"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Control     ControlConfig     `yaml:"control"`
	Queue       QueueConfig       `yaml:"queue"`
	Playback    PlaybackConfig    `yaml:"playback"`
	Recommender RecommenderConfig `yaml:"recommender"`
	Metadata    MetadataConfig    `yaml:"metadata"`
	Messages    MessagesConfig    `yaml:"messages"`
	Spotify     SpotifyConfig     `yaml:"spotify"`
}

// ServerConfig represents control server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:"127.0.0.1:8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// ControlConfig represents control API configuration.
type ControlConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// QueueConfig represents queue sizing configuration.
type QueueConfig struct {
	InitialLength int `yaml:"initial_length" default:"20" validate:"gte=1,lte=100"`
	RefineLength  int `yaml:"refine_length" default:"10" validate:"gte=1,lte=100"`
	MinimumLeft   int `yaml:"minimum_left" default:"3" validate:"gte=1"`
}

// PlaybackConfig represents playback synchronization configuration.
type PlaybackConfig struct {
	PollIntervalMs         int          `yaml:"poll_interval_ms" default:"500" validate:"gte=50,lte=10000"`
	AutoAdvanceThresholdMs int          `yaml:"auto_advance_threshold_ms" default:"2000" validate:"gte=0,lte=30000"`
	TimerResolutionMs      int          `yaml:"timer_resolution_ms" default:"100" validate:"gte=10,lte=1000"`
	Engine                 EngineConfig `yaml:"engine"`
}

// EngineConfig selects the playback engine.
type EngineConfig struct {
	Type     string         `yaml:"type" default:"spotify" validate:"oneof=spotify simulated"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// RecommenderConfig represents recommendation service configuration.
type RecommenderConfig struct {
	BaseURL    string  `yaml:"base_url" validate:"required,url"`
	TimeoutMs  int     `yaml:"timeout_ms" default:"10000" validate:"gte=100"`
	RatePerSec float64 `yaml:"rate_per_sec" default:"5" validate:"gte=0"`
	MaxRetries int     `yaml:"max_retries" default:"3" validate:"gte=1,lte=10"`
}

// MetadataConfig represents track metadata configuration.
type MetadataConfig struct {
	FetchTimeoutMs int `yaml:"fetch_timeout_ms" default:"10000" validate:"gte=100"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	AtEnd            string `yaml:"at_end" default:"No more tracks yet, fetching more"`
	AtStart          string `yaml:"at_start" default:"Already at the first track"`
	NotLoaded        string `yaml:"not_loaded" default:"Track is still loading"`
	MetadataFailed   string `yaml:"metadata_failed" default:"Could not load track details"`
	RefinementFailed string `yaml:"refinement_failed" default:"Could not update recommendations"`
	Exited           string `yaml:"exited" default:"Player has stopped"`
	DefaultError     string `yaml:"default_error" default:"Something went wrong"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
	DeviceID     string `yaml:"device_id"`
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
	if v := os.Getenv("SPOTIFY_DEVICE_ID"); v != "" {
		c.Spotify.DeviceID = v
	}
	if v := os.Getenv("CONTROL_TOKEN"); v != "" {
		c.Control.Token = v
	}
	if v := os.Getenv("RECOMMENDER_URL"); v != "" {
		c.Recommender.BaseURL = v
	}
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "at_end":
		return c.Messages.AtEnd
	case "at_start":
		return c.Messages.AtStart
	case "not_loaded":
		return c.Messages.NotLoaded
	case "metadata_failed":
		return c.Messages.MetadataFailed
	case "refinement_failed":
		return c.Messages.RefinementFailed
	case "exited":
		return c.Messages.Exited
	default:
		return c.Messages.DefaultError
	}
}

// HasSpotifyCredentials reports whether all Spotify credentials are set.
func (c *Config) HasSpotifyCredentials() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != "" && c.Spotify.RefreshToken != ""
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Playback.Engine.Type == EngineSpotify && !c.HasSpotifyCredentials() {
		return errors.New("spotify engine requires spotify credentials")
	}
	if c.Queue.MinimumLeft > c.Queue.InitialLength {
		return errors.Newf("minimum_left (%d) must not exceed initial_length (%d)",
			c.Queue.MinimumLeft, c.Queue.InitialLength)
	}

	return nil
}

// PollInterval returns the engine poll interval.
func (p PlaybackConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

// AutoAdvanceThreshold returns the auto-advance threshold.
func (p PlaybackConfig) AutoAdvanceThreshold() time.Duration {
	return time.Duration(p.AutoAdvanceThresholdMs) * time.Millisecond
}

// TimerResolution returns the wall clock timer resolution.
func (p PlaybackConfig) TimerResolution() time.Duration {
	return time.Duration(p.TimerResolutionMs) * time.Millisecond
}

// Timeout returns the request timeout.
func (r RecommenderConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

// FetchTimeout returns the metadata fetch timeout.
func (m MetadataConfig) FetchTimeout() time.Duration {
	return time.Duration(m.FetchTimeoutMs) * time.Millisecond
}
