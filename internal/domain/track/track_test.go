package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrack_Artist(t *testing.T) {
	tests := []struct {
		name     string
		artists  []string
		expected string
	}{
		{name: "no artists", artists: nil, expected: ""},
		{name: "single artist", artists: []string{"Lady Gaga"}, expected: "Lady Gaga"},
		{name: "multiple artists", artists: []string{"Lady Gaga", "Colby O'Donis"}, expected: "Lady Gaga, Colby O'Donis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &Track{ID: "test-id", Artists: tt.artists}
			assert.Equal(t, tt.expected, tr.Artist())
		})
	}
}

func TestURIFromID(t *testing.T) {
	assert.Equal(t, "spotify:track:abc123", URIFromID("abc123"))
	assert.Equal(t, "spotify:track:abc123", URIFromID("spotify:track:abc123"))
}

func TestPlayerState_Remaining(t *testing.T) {
	tests := []struct {
		name     string
		position time.Duration
		duration time.Duration
		expected time.Duration
	}{
		{name: "start of track", position: 0, duration: 3 * time.Minute, expected: 3 * time.Minute},
		{name: "near end", position: 179 * time.Second, duration: 180 * time.Second, expected: time.Second},
		{name: "past end", position: 181 * time.Second, duration: 180 * time.Second, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &PlayerState{Position: tt.position, Playing: true}
			assert.Equal(t, tt.expected, s.Remaining(tt.duration))
		})
	}
}
