// Package simengine provides a wall-clock simulated playback engine for
// running the player without a Spotify Connect device.
package simengine

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/moodbox/internal/domain/track"
)

// ErrNothingLoaded is returned by transport commands before any track was played.
var ErrNothingLoaded = errors.New("no track loaded")

// Settings is the simulated engine configuration.
type Settings struct {
	Speed             float64 `yaml:"speed" mapstructure:"speed" default:"1" validate:"gt=0"`
	DefaultDurationMs int     `yaml:"default_duration_ms" mapstructure:"default_duration_ms" default:"180000" validate:"gte=1000"`
}

// TrackSource resolves track durations.
type TrackSource interface {
	GetTrack(ctx context.Context, trackID string, market ...string) (*track.Track, error)
}

// Engine simulates a playback device. Position advances with the wall clock
// scaled by Speed and stops at the end of the track.
type Engine struct {
	mu sync.Mutex

	source   TrackSource
	settings Settings
	now      func() time.Time

	current  string
	duration time.Duration
	position time.Duration // Position at anchor
	anchor   time.Time
	playing  bool
}

// New creates a simulated engine from a settings map. source may be nil,
// in which case every track lasts DefaultDurationMs.
func New(source TrackSource, settings map[string]any) (*Engine, error) {
	var s Settings
	if err := mapstructure.Decode(settings, &s); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&s); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(s); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	return &Engine{
		source:   source,
		settings: s,
		now:      time.Now,
	}, nil
}

// PlayURI loads trackID and starts it at offset.
func (e *Engine) PlayURI(ctx context.Context, trackID string, offset time.Duration) error {
	duration := e.lookupDuration(ctx, trackID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if offset < 0 {
		offset = 0
	}
	if offset > duration {
		offset = duration
	}

	e.current = trackID
	e.duration = duration
	e.position = offset
	e.anchor = e.now()
	e.playing = true

	zlog.Debug().Msgf("simengine: playing: id=%s duration=%v offset=%v", trackID, duration, offset)
	return nil
}

// SetPlaying resumes or pauses the loaded track.
func (e *Engine) SetPlaying(_ context.Context, playing bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == "" {
		return ErrNothingLoaded
	}
	e.position = e.positionLocked()
	e.anchor = e.now()
	e.playing = playing && e.position < e.duration
	return nil
}

// Seek moves the position of the loaded track.
func (e *Engine) Seek(_ context.Context, position time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == "" {
		return ErrNothingLoaded
	}
	if position < 0 {
		position = 0
	}
	if position > e.duration {
		position = e.duration
	}
	e.position = position
	e.anchor = e.now()
	return nil
}

// PlaybackState returns the simulated state, or nil before the first play.
func (e *Engine) PlaybackState(_ context.Context) (*track.PlayerState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == "" {
		return nil, nil
	}

	pos := e.positionLocked()
	if pos >= e.duration && e.playing {
		// Track ended
		e.position = e.duration
		e.anchor = e.now()
		e.playing = false
	}

	return &track.PlayerState{
		TrackID:  e.current,
		Position: pos,
		Playing:  e.playing,
	}, nil
}

func (e *Engine) positionLocked() time.Duration {
	pos := e.position
	if e.playing {
		elapsed := e.now().Sub(e.anchor)
		pos += time.Duration(float64(elapsed) * e.settings.Speed)
	}
	if pos > e.duration {
		pos = e.duration
	}
	return pos
}

func (e *Engine) lookupDuration(ctx context.Context, trackID string) time.Duration {
	fallback := time.Duration(e.settings.DefaultDurationMs) * time.Millisecond
	if e.source == nil {
		return fallback
	}

	t, err := e.source.GetTrack(ctx, trackID)
	if err != nil || t == nil || t.Duration <= 0 {
		if err != nil {
			zlog.Warn().Err(err).Msgf("simengine: failed to resolve duration, using default: id=%s", trackID)
		}
		return fallback
	}
	return t.Duration
}
