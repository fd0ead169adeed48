package playback

import (
	"github.com/osa030/moodbox/internal/domain/feedback"
	"github.com/osa030/moodbox/internal/domain/track"
)

// EventType represents a controller event type.
type EventType int

const (
	EventReady           EventType = iota // Initial queue loaded
	EventTrackChanged                     // Position moved to another slot
	EventTrackLoaded                      // Metadata for a slot resolved
	EventPlaybackStarted                  // Play command issued for the current slot
	EventPauseChanged                     // Paused flag changed
	EventQueueExtended                    // Refinement response appended
	EventNotice                           // Recoverable failure worth showing the user
	EventExited                           // Controller torn down
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventReady:
		return "ready"
	case EventTrackChanged:
		return "track_changed"
	case EventTrackLoaded:
		return "track_loaded"
	case EventPlaybackStarted:
		return "playback_started"
	case EventPauseChanged:
		return "pause_changed"
	case EventQueueExtended:
		return "queue_extended"
	case EventNotice:
		return "notice"
	case EventExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Event represents a controller event.
type Event struct {
	Type   EventType
	Index  int             // Slot the event refers to
	Track  *track.Track    // Resolved metadata (nil when not loaded)
	Intent feedback.Intent // Refinement intent (EventQueueExtended, EventNotice)
	Count  int             // Number of appended identifiers (EventQueueExtended)
	Paused bool            // Paused flag (EventPauseChanged)
	Err    error           // Failure (EventNotice)
}
