package session

import (
	"time"

	"github.com/osa030/moodbox/internal/app/playback"
	moodsession "github.com/osa030/moodbox/internal/domain/session"
	"github.com/osa030/moodbox/internal/domain/track"
)

// statusInfo renders a controller status for notifications.
// Values are restricted to the types structpb.NewValue accepts.
func statusInfo(sess *moodsession.Session, st playback.Status) map[string]any {
	info := map[string]any{
		"session_id":       sess.ID,
		"mood":             sess.Mood.Key,
		"mood_label":       sess.Mood.Label,
		"source":           string(sess.Source),
		"started_at":       sess.StartedAt.Format(time.RFC3339),
		"state":            st.State.String(),
		"position":         st.Position,
		"queue_length":     st.QueueLength,
		"loading":          st.Loading,
		"paused":           st.Paused,
		"scrubbing":        st.Scrubbing,
		"elapsed_seconds":  st.Elapsed.Seconds(),
		"duration_seconds": st.Duration.Seconds(),
		"can_next":         st.CanNext,
		"can_prev":         st.CanPrev,
		"feedback":         st.Feedback.String(),
	}
	if st.Track != nil {
		info["track"] = trackInfo(st.Track)
	}
	return info
}

func trackInfo(t *track.Track) map[string]any {
	artists := make([]any, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a
	}
	return map[string]any{
		"track_id":         t.ID,
		"name":             t.Name,
		"artists":          artists,
		"album":            t.Album,
		"album_art_url":    t.AlbumArtURL,
		"url":              t.URL,
		"duration_seconds": t.Duration.Seconds(),
	}
}
