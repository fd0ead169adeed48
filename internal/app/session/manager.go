// Package session provides the session manager that runs one queue
// controller and fans its events out to watchers.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/moodbox/internal/app/metadata"
	"github.com/osa030/moodbox/internal/app/notification"
	"github.com/osa030/moodbox/internal/app/playback"
	moodsession "github.com/osa030/moodbox/internal/domain/session"
	"github.com/osa030/moodbox/internal/infra/config"
)

// Message codes resolved through config.GetMessage.
const (
	CodeAtEnd            = "at_end"
	CodeAtStart          = "at_start"
	CodeNotLoaded        = "not_loaded"
	CodeMetadataFailed   = "metadata_failed"
	CodeRefinementFailed = "refinement_failed"
	CodeExited           = "exited"
	CodeDefault          = "default_error"
)

// Dependencies are the adapters the controller runs against.
type Dependencies struct {
	Recommender playback.Recommender
	Resolver    metadata.Resolver
	Engine      playback.Engine
	Metrics     playback.Metrics // Optional
}

// Manager manages the listening session.
type Manager struct {
	mu sync.RWMutex

	// Configuration
	config  *config.Config
	session *moodsession.Session

	// Components
	playback     *playback.Controller
	notification *notification.Manager

	started  bool
	stopOnce sync.Once
	doneOnce sync.Once
	done     chan struct{}
}

// NewManager creates a session manager and its controller.
func NewManager(cfg *config.Config, sess *moodsession.Session, deps Dependencies) (*Manager, error) {
	if sess == nil {
		return nil, errors.New("session is required")
	}
	if deps.Recommender == nil || deps.Resolver == nil || deps.Engine == nil {
		return nil, errors.New("recommender, resolver and engine are required")
	}

	controller := playback.NewController(ControllerConfig(cfg), playback.Dependencies{
		Session:     sess,
		Recommender: deps.Recommender,
		Resolver:    deps.Resolver,
		Engine:      deps.Engine,
		Metrics:     deps.Metrics,
	})

	return &Manager{
		config:       cfg,
		session:      sess,
		playback:     controller,
		notification: notification.NewManager(),
		done:         make(chan struct{}),
	}, nil
}

// ControllerConfig derives the controller configuration.
func ControllerConfig(cfg *config.Config) playback.Config {
	return playback.Config{
		InitialLength:        cfg.Queue.InitialLength,
		RefineLength:         cfg.Queue.RefineLength,
		MinimumLeft:          cfg.Queue.MinimumLeft,
		PollInterval:         cfg.Playback.PollInterval(),
		AutoAdvanceThreshold: cfg.Playback.AutoAdvanceThreshold(),
		TimerResolution:      cfg.Playback.TimerResolution(),
		RequestTimeout:       cfg.Recommender.Timeout(),
		MetadataTimeout:      cfg.Metadata.FetchTimeout(),
		Market:               cfg.Spotify.Market,
	}
}

// Start starts the event loop and fetches the initial queue.
// On failure the caller should Stop the manager.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return playback.ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	zlog.Info().Msgf("session: starting: session_id=%s mood=%q source=%s",
		m.session.ID, m.session.Mood.Label, m.session.Source)

	go m.playbackLoop()

	if err := m.playback.Initialize(ctx); err != nil {
		return err
	}
	return nil
}

// Stop tears the controller down and waits until the exit notification
// has been broadcast or ctx expires.
func (m *Manager) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() {
		zlog.Info().Msgf("session: stopping: session_id=%s", m.session.ID)
		m.playback.Teardown()

		m.mu.RLock()
		started := m.started
		m.mu.RUnlock()
		if !started {
			m.finish()
		}
	})

	select {
	case <-m.done:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "timed out waiting for session to stop")
	}

	m.playback.Wait()
	m.notification.Close()
	return nil
}

// Done returns a channel that is closed when the session has stopped.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Session returns the listening session.
func (m *Manager) Session() *moodsession.Session {
	return m.session
}

// Next skips to the next track.
func (m *Manager) Next() error {
	return m.playback.Next()
}

// Prev returns to the previous track.
func (m *Manager) Prev() error {
	return m.playback.Prev()
}

// Like likes the current track.
func (m *Manager) Like() error {
	return m.playback.Like()
}

// Dislike dislikes the current track and moves on.
func (m *Manager) Dislike() error {
	return m.playback.Dislike()
}

// Pause pauses playback.
func (m *Manager) Pause() error {
	return m.playback.SetPaused(true)
}

// Resume resumes playback.
func (m *Manager) Resume() error {
	return m.playback.SetPaused(false)
}

// Seek seeks within the current track.
func (m *Manager) Seek(position time.Duration) error {
	return m.playback.Seek(position)
}

// SlidingStart starts a scrub.
func (m *Manager) SlidingStart() error {
	return m.playback.SlidingStart()
}

// SlidingEnd commits a scrub at position.
func (m *Manager) SlidingEnd(position time.Duration) error {
	return m.playback.SlidingEnd(position)
}

// GetStatus returns the current controller status.
func (m *Manager) GetStatus() playback.Status {
	return m.playback.Status()
}

// Queue returns the queue snapshot.
func (m *Manager) Queue() []playback.QueueEntry {
	return m.playback.Queue()
}

// GetNotificationManager returns the notification manager.
func (m *Manager) GetNotificationManager() *notification.Manager {
	return m.notification
}

// StatusMessage builds a status notification of the given type.
func (m *Manager) StatusMessage(typ string) *structpb.Struct {
	return m.build(map[string]any{
		"type":   typ,
		"status": statusInfo(m.session, m.playback.Status()),
	})
}

// Message returns the user-facing message for err.
func (m *Manager) Message(err error) string {
	return m.config.GetMessage(ErrorCode(err))
}

// ErrorCode maps controller errors to message codes.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, playback.ErrAtEnd):
		return CodeAtEnd
	case errors.Is(err, playback.ErrAtStart):
		return CodeAtStart
	case errors.Is(err, playback.ErrNotLoaded):
		return CodeNotLoaded
	case errors.Is(err, playback.ErrExited):
		return CodeExited
	default:
		return CodeDefault
	}
}

// playbackLoop forwards controller events until the event channel closes.
func (m *Manager) playbackLoop() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session: playback loop panicked: %v", r)
			// Restart loop to prevent zombie session
			zlog.Info().Msg("session: restarting playback loop")
			go m.playbackLoop()
		}
	}()

	for event := range m.playback.Events() {
		m.handlePlaybackEvent(event)
	}
	m.finish()
}

// handlePlaybackEvent broadcasts one controller event.
func (m *Manager) handlePlaybackEvent(event playback.Event) {
	zlog.Debug().Msgf("session: playback event: type=%s index=%d", event.Type, event.Index)

	payload := map[string]any{
		"type":  event.Type.String(),
		"index": event.Index,
	}

	switch event.Type {
	case playback.EventQueueExtended:
		payload["intent"] = event.Intent.String()
		payload["count"] = event.Count
	case playback.EventPauseChanged:
		payload["paused"] = event.Paused
	case playback.EventTrackLoaded:
		if event.Track != nil {
			payload["track"] = trackInfo(event.Track)
		}
	case playback.EventNotice:
		code := CodeMetadataFailed
		if event.Intent != "" {
			code = CodeRefinementFailed
			payload["intent"] = event.Intent.String()
		}
		payload["code"] = code
		payload["message"] = m.config.GetMessage(code)
	case playback.EventExited:
		payload["code"] = CodeExited
		payload["message"] = m.config.GetMessage(CodeExited)
	}

	payload["status"] = statusInfo(m.session, m.playback.Status())
	m.notification.Broadcast(m.build(payload))
}

func (m *Manager) build(payload map[string]any) *structpb.Struct {
	s, err := structpb.NewStruct(payload)
	if err != nil {
		zlog.Error().Err(err).Msgf("session: failed to build notification: type=%v", payload["type"])
		return &structpb.Struct{Fields: map[string]*structpb.Value{
			"type": structpb.NewStringValue("error"),
		}}
	}
	return s
}

func (m *Manager) finish() {
	m.doneOnce.Do(func() {
		zlog.Info().Msgf("session: stopped: session_id=%s", m.session.ID)
		close(m.done)
	})
}
