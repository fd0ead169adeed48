// Package playback provides the adaptive queue controller and its playback
// position synchronizer.
package playback

// State represents the controller lifecycle state.
type State int

const (
	StateInitializing State = iota // Queue empty, waiting for the initial fetch
	StateReady                     // Queue populated, position valid
	StateExited                    // Torn down
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}
