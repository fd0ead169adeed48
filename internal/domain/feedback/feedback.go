// Package feedback provides feedback intents and the per-session feedback ledger.
package feedback

import "sync"

// Intent is the signal a refinement request carries.
type Intent string

const (
	IntentLike    Intent = "like"    // Explicit like
	IntentDislike Intent = "dislike" // Explicit dislike
	IntentSkip    Intent = "skip"    // User navigated past the track
	IntentExtend  Intent = "extend"  // Track played through
)

// String returns the wire name of the intent.
func (i Intent) String() string {
	return string(i)
}

// IsExplicit reports whether the intent came from a like/dislike action.
func (i Intent) IsExplicit() bool {
	return i == IntentLike || i == IntentDislike
}

// IsSkip reports whether the intent is an active skip.
func (i Intent) IsSkip() bool {
	return i == IntentSkip
}

// Weight returns how far the recommendation service moves the mood toward
// (positive) or away from (negative) the rated track.
func (i Intent) Weight() float64 {
	switch i {
	case IntentLike:
		return 0.5
	case IntentDislike:
		return -0.5
	case IntentSkip:
		return -0.25
	default:
		return 0
	}
}

// Request describes one refinement call.
type Request struct {
	Index  int    // Slot index the signal refers to
	Length int    // Number of identifiers requested
	Intent Intent // Signal
}

// Ledger records explicit feedback, at most once per slot index.
type Ledger struct {
	mu      sync.Mutex
	entries map[int]Intent
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[int]Intent),
	}
}

// Record stores intent for index. It returns false, leaving the ledger
// unchanged, if feedback for index already exists.
func (l *Ledger) Record(index int, intent Intent) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[index]; ok {
		return false
	}
	l.entries[index] = intent
	return true
}

// Get returns the feedback recorded for index.
func (l *Ledger) Get(index int) (Intent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	intent, ok := l.entries[index]
	return intent, ok
}
