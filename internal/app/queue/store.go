// Package queue provides the append-only track queue with per-slot loaded flags.
package queue

import "sync"

// Slot is one position in the queue.
type Slot struct {
	Index   int
	TrackID string
	Loaded  bool
}

// Store is an ordered, append-only sequence of track IDs.
// The loaded flags always have the same length as the IDs.
type Store struct {
	mu     sync.RWMutex
	ids    []string
	loaded []bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		ids:    make([]string, 0),
		loaded: make([]bool, 0),
	}
}

// Append adds ids at the tail, each with an unloaded flag, and returns
// the new length.
func (s *Store) Append(ids ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ids = append(s.ids, ids...)
	s.loaded = append(s.loaded, make([]bool, len(ids))...)
	return len(s.ids)
}

// Get returns the track ID at index i.
func (s *Store) Get(i int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i < 0 || i >= len(s.ids) {
		return "", false
	}
	return s.ids[i], true
}

// Len returns the number of slots.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IsLoaded reports whether metadata for slot i has resolved.
func (s *Store) IsLoaded(i int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i < 0 || i >= len(s.loaded) {
		return false
	}
	return s.loaded[i]
}

// MarkLoaded flags every unloaded slot holding id and returns the indices
// that changed. Slots already loaded are left alone.
func (s *Store) MarkLoaded(id string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []int
	for i, v := range s.ids {
		if v == id && !s.loaded[i] {
			s.loaded[i] = true
			changed = append(changed, i)
		}
	}
	return changed
}

// Snapshot returns a copy of every slot.
func (s *Store) Snapshot() []Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Slot, len(s.ids))
	for i, id := range s.ids {
		result[i] = Slot{Index: i, TrackID: id, Loaded: s.loaded[i]}
	}
	return result
}

// consistent reports whether the parallel slices agree in length.
func (s *Store) consistent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids) == len(s.loaded)
}
