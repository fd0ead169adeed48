package simengine

import (
	"context"
	"time"

	"github.com/osa030/moodbox/internal/domain/track"
)

// Catalog resolves any identifier to placeholder metadata. It stands in for
// the Spotify catalog when no credentials are configured.
type Catalog struct {
	Duration time.Duration
}

// GetTrack returns placeholder metadata for trackID.
func (c Catalog) GetTrack(_ context.Context, trackID string, _ ...string) (*track.Track, error) {
	d := c.Duration
	if d <= 0 {
		d = 3 * time.Minute
	}
	return &track.Track{
		ID:       trackID,
		Name:     trackID,
		Artists:  []string{"Unknown Artist"},
		Duration: d,
		URL:      "https://open.spotify.com/track/" + trackID,
	}, nil
}
