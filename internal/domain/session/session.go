// Package session provides the listening Session domain entity.
package session

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/osa030/moodbox/internal/domain/mood"
)

// Source selects where the recommendation service draws tracks from.
type Source string

const (
	SourceLibrary Source = "library" // User's liked songs
	SourceCatalog Source = "catalog" // Whole catalog (popular tracks)
)

var (
	ErrUnknownSource = errors.New("unknown source")
	ErrMissingToken  = errors.New("auth token is required")
)

// ParseSource parses a source name. "spotify" is accepted for the catalog.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "library", "liked", "liked songs":
		return SourceLibrary, nil
	case "catalog", "spotify":
		return SourceCatalog, nil
	default:
		return "", errors.Wrapf(ErrUnknownSource, "%q", s)
	}
}

// Session is the immutable context a queue controller runs under.
type Session struct {
	ID        string    // UUID
	Token     string    // Auth token forwarded to the recommendation service
	Mood      mood.Mood // Chosen mood
	Source    Source    // Chosen source
	StartedAt time.Time // Creation time
}

// New creates a session for the given mood and source.
func New(token, moodKey, source string) (*Session, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	m, err := mood.Lookup(moodKey)
	if err != nil {
		return nil, err
	}

	src, err := ParseSource(source)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:        uuid.New().String(),
		Token:     token,
		Mood:      m,
		Source:    src,
		StartedAt: time.Now(),
	}, nil
}

// FromLibrary reports whether tracks come from the user's library.
func (s *Session) FromLibrary() bool {
	return s.Source == SourceLibrary
}
