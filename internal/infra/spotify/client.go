// Package spotify provides a client for the Spotify API.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/moodbox/internal/domain/track"
)

// Scopes are the OAuth scopes the player needs.
var Scopes = []string{
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopeUserLibraryRead,
}

// Client is a Spotify API client. It resolves track metadata and drives
// a Spotify Connect device.
type Client struct {
	client     *spotify.Client
	market     string
	deviceID   string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
	DeviceID     string // Empty targets the active device
}

// Device is a Spotify Connect device.
type Device struct {
	ID     string
	Name   string
	Type   string
	Active bool
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(Scopes...),
	)

	// Create token from refresh token
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	// Get HTTP client with auto-refresh capability
	httpClient := auth.Client(ctx, token)
	return newClient(spotify.New(httpClient), cfg), nil
}

// AccessToken returns a fresh access token for the recommendation service.
func (c *Client) AccessToken() (string, error) {
	token, err := c.client.Token()
	if err != nil {
		return "", errors.Wrap(err, "failed to obtain access token")
	}
	return token.AccessToken, nil
}

func newClient(client *spotify.Client, cfg Config) *Client {
	market := cfg.Market
	if market == "" {
		market = "JP"
	}
	return &Client{
		client:     client,
		market:     market,
		deviceID:   cfg.DeviceID,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// GetTrack retrieves track information by ID, URL, or URI.
// It returns nil without error when the catalog has no such track.
func (c *Client) GetTrack(ctx context.Context, trackID string, market ...string) (*track.Track, error) {
	id := extractTrackID(trackID)

	m := c.market
	if len(market) > 0 && market[0] != "" {
		m = market[0]
	}

	var result *spotify.FullTrack
	err := c.retry(func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(m))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to get track %s", id)
	}

	return c.convertTrack(result), nil
}

// PlayURI starts the track on the device at offset.
func (c *Client) PlayURI(ctx context.Context, trackID string, offset time.Duration) error {
	opts := c.playOptions()
	opts.URIs = []spotify.URI{spotify.URI(track.URIFromID(extractTrackID(trackID)))}

	err := c.retry(func() error {
		return c.client.PlayOpt(ctx, opts)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to play track %s", trackID)
	}

	if offset > 0 {
		return c.Seek(ctx, offset)
	}
	return nil
}

// SetPlaying resumes or pauses the device.
func (c *Client) SetPlaying(ctx context.Context, playing bool) error {
	err := c.retry(func() error {
		if playing {
			return c.client.PlayOpt(ctx, c.playOptions())
		}
		return c.client.PauseOpt(ctx, c.playOptions())
	})
	if err != nil {
		return errors.Wrapf(err, "failed to set playing=%t", playing)
	}
	return nil
}

// Seek moves the playback position of the device.
func (c *Client) Seek(ctx context.Context, position time.Duration) error {
	err := c.retry(func() error {
		return c.client.SeekOpt(ctx, int(position.Milliseconds()), c.playOptions())
	})
	if err != nil {
		return errors.Wrapf(err, "failed to seek to %v", position)
	}
	return nil
}

// PlaybackState returns what the device is playing, or nil when nothing is loaded.
func (c *Client) PlaybackState(ctx context.Context) (*track.PlayerState, error) {
	var state *spotify.PlayerState
	err := c.retry(func() error {
		s, err := c.client.PlayerState(ctx, spotify.Market(c.market))
		if err != nil {
			return err
		}
		state = s
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get player state")
	}
	if state == nil || state.Item == nil {
		return nil, nil
	}

	return &track.PlayerState{
		TrackID:  string(state.Item.ID),
		Position: time.Duration(state.Progress) * time.Millisecond,
		Playing:  state.Playing,
	}, nil
}

// Devices lists the Spotify Connect devices of the user.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	var devices []spotify.PlayerDevice
	err := c.retry(func() error {
		d, err := c.client.PlayerDevices(ctx)
		if err != nil {
			return err
		}
		devices = d
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list devices")
	}

	result := make([]Device, len(devices))
	for i, d := range devices {
		result[i] = Device{
			ID:     string(d.ID),
			Name:   d.Name,
			Type:   d.Type,
			Active: d.Active,
		}
	}
	return result, nil
}

func (c *Client) playOptions() *spotify.PlayOptions {
	opts := &spotify.PlayOptions{}
	if c.deviceID != "" {
		id := spotify.ID(c.deviceID)
		opts.DeviceID = &id
	}
	return opts
}

// convertTrack converts a Spotify FullTrack to domain Track.
func (c *Client) convertTrack(t *spotify.FullTrack) *track.Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var albumArt string
	if len(t.Album.Images) > 0 {
		albumArt = t.Album.Images[0].URL
	}

	return &track.Track{
		ID:          string(t.ID),
		Name:        t.Name,
		Artists:     artists,
		Album:       t.Album.Name,
		AlbumArtURL: albumArt,
		Duration:    time.Duration(t.Duration) * time.Millisecond,
		URL:         GetTrackURL(string(t.ID)),
	}
}

// GetTrackURL returns the Spotify URL for a track.
func GetTrackURL(trackID string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", trackID)
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			zlog.Debug().Err(err).Msgf("spotify: retrying request: attempt=%d", i+1)
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se spotify.Error
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= 500
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

func isNotFound(err error) bool {
	var se spotify.Error
	if errors.As(err, &se) {
		return se.Status == http.StatusNotFound || se.Status == http.StatusBadRequest
	}
	return false
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:track:TRACK_ID
	if strings.HasPrefix(input, "spotify:track:") {
		return strings.TrimPrefix(input, "spotify:track:")
	}

	// Handle URL format: https://open.spotify.com/track/TRACK_ID or https://open.spotify.com/intl-XX/track/TRACK_ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/") {
		parts := strings.Split(input, "/track/")
		if len(parts) >= 2 {
			// Remove query parameters and trailing slashes
			id := strings.Split(parts[len(parts)-1], "?")[0]
			id = strings.TrimRight(id, "/")
			return id
		}
	}

	// Assume it's already a track ID
	return input
}
