// Package track provides the Track domain entity.
package track

import (
	"strings"
	"time"
)

// Track holds the resolved metadata for one catalog track.
type Track struct {
	ID          string        // Spotify Track ID
	Name        string        // Track name
	Artists     []string      // Artist names
	Album       string        // Album name
	AlbumArtURL string        // Artwork reference
	Duration    time.Duration // Track duration
	URL         string        // Spotify URL
}

// Artist returns the artist names joined for display.
func (t *Track) Artist() string {
	return strings.Join(t.Artists, ", ")
}

// URIFromID builds a Spotify track URI from a bare ID.
func URIFromID(id string) string {
	if strings.HasPrefix(id, "spotify:track:") {
		return id
	}
	return "spotify:track:" + id
}

// PlayerState is a snapshot reported by the external playback engine.
type PlayerState struct {
	TrackID  string        // Track the engine is playing (empty if unknown)
	Position time.Duration // Elapsed position within the track
	Playing  bool          // True while audio is playing
}

// Remaining returns how much of the track is left given its duration.
// The result is never negative.
func (s *PlayerState) Remaining(duration time.Duration) time.Duration {
	remaining := duration - s.Position
	if remaining < 0 {
		return 0
	}
	return remaining
}
