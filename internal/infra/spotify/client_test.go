package spotify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := newClient(spotify.New(server.Client(), spotify.WithBaseURL(server.URL+"/")), Config{
		Market:   "JP",
		DeviceID: "device-1",
	})
	c.retryDelay = time.Millisecond
	return c
}

func TestExtractTrackID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Spotify URI format", input: "spotify:track:4uLU6hMCjMI75M1A2tKUQC", expected: "4uLU6hMCjMI75M1A2tKUQC"},
		{name: "Spotify URL format", input: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", expected: "4uLU6hMCjMI75M1A2tKUQC"},
		{name: "URL with locale", input: "https://open.spotify.com/intl-ja/track/abc123?si=xyz", expected: "abc123"},
		{name: "Trailing slash", input: "https://open.spotify.com/track/abc123/", expected: "abc123"},
		{name: "Plain ID with spaces", input: "  abc123 ", expected: "abc123"},
		{name: "Empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractTrackID(tt.input))
		})
	}
}

func TestGetTrack(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/tracks/abc123", r.URL.Path)
		assert.Equal(t, "US", r.URL.Query().Get("market"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "abc123",
			"name": "Someone Like You",
			"artists": [{"name": "Adele"}, {"name": "Guest"}],
			"album": {"name": "21", "images": [{"url": "https://i.scdn.co/image/cover"}]},
			"duration_ms": 285000
		}`)
	})

	got, err := c.GetTrack(context.Background(), "spotify:track:abc123", "US")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc123", got.ID)
	assert.Equal(t, "Someone Like You", got.Name)
	assert.Equal(t, "Adele, Guest", got.Artist())
	assert.Equal(t, "21", got.Album)
	assert.Equal(t, "https://i.scdn.co/image/cover", got.AlbumArtURL)
	assert.Equal(t, 285*time.Second, got.Duration)
	assert.Equal(t, "https://open.spotify.com/track/abc123", got.URL)
}

func TestGetTrack_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error": {"status": 404, "message": "Not found."}}`)
	})

	got, err := c.GetTrack(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPlaybackState(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/player", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"progress_ms": 42000,
			"is_playing": true,
			"item": {"id": "abc123", "name": "Song", "duration_ms": 180000}
		}`)
	})

	st, err := c.PlaybackState(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "abc123", st.TrackID)
	assert.Equal(t, 42*time.Second, st.Position)
	assert.True(t, st.Playing)
}

func TestPlayURIAndSeek(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "device-1", r.URL.Query().Get("device_id"))
		paths = append(paths, r.URL.Path)

		switch r.URL.Path {
		case "/me/player/play":
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), "spotify:track:abc123")
		case "/me/player/seek":
			assert.Equal(t, "30000", r.URL.Query().Get("position_ms"))
		}
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.PlayURI(context.Background(), "abc123", 30*time.Second))
	assert.Equal(t, []string{"/me/player/play", "/me/player/seek"}, paths)
}

func TestSetPlaying(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.SetPlaying(context.Background(), false))
	require.NoError(t, c.SetPlaying(context.Background(), true))
	assert.Equal(t, []string{"/me/player/pause", "/me/player/play"}, paths)
}

func TestRetryOnServerError(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"error": {"status": 502, "message": "Bad gateway"}}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.Seek(context.Background(), time.Second))
	assert.Equal(t, 2, calls)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "rate limit error with 429",
			err:      errors.New("Error 429: rate limit exceeded"),
			expected: true,
		},
		{
			name:     "rate limit text",
			err:      errors.New("rate limit exceeded"),
			expected: true,
		},
		{
			name:     "server error 500",
			err:      errors.New("Error 500: internal server error"),
			expected: true,
		},
		{
			name:     "server error 502",
			err:      errors.New("502 Bad Gateway"),
			expected: true,
		},
		{
			name:     "server error 503",
			err:      errors.New("503 Service Unavailable"),
			expected: true,
		},
		{
			name:     "server error 504",
			err:      errors.New("504 Gateway Timeout"),
			expected: true,
		},
		{
			name:     "client error 400",
			err:      errors.New("400 Bad Request"),
			expected: false,
		},
		{
			name:     "not found error",
			err:      errors.New("404 not found"),
			expected: false,
		},
		{
			name:     "spotify throttled",
			err:      spotify.Error{Status: http.StatusTooManyRequests, Message: "slow down"},
			expected: true,
		},
		{
			name:     "spotify forbidden",
			err:      spotify.Error{Status: http.StatusForbidden, Message: "premium required"},
			expected: false,
		},
		{
			name:     "generic error",
			err:      errors.New("something went wrong"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryable(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}
