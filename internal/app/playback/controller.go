package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/osa030/moodbox/internal/app/metadata"
	"github.com/osa030/moodbox/internal/app/queue"
	"github.com/osa030/moodbox/internal/domain/feedback"
	"github.com/osa030/moodbox/internal/domain/session"
	"github.com/osa030/moodbox/internal/domain/track"
	zlog "github.com/rs/zerolog/log"
)

// Errors
var (
	ErrInitialization   = errors.New("queue initialization failed")
	ErrAlreadyStarted   = errors.New("controller already initialized")
	ErrNotReady         = errors.New("controller is not ready")
	ErrExited           = errors.New("controller has exited")
	ErrAtEnd            = errors.New("already at the last track")
	ErrAtStart          = errors.New("already at the first track")
	ErrNotLoaded        = errors.New("current track is not loaded")
	errEmptyQueue       = errors.New("recommendation service returned an empty queue")
	errCommandQueueFull = errors.New("engine command queue is full")
)

// Recommender produces and refines the track queue.
type Recommender interface {
	InitialQueue(ctx context.Context, sess *session.Session, length int) ([]string, error)
	Refine(ctx context.Context, sess *session.Session, req feedback.Request) ([]string, error)
}

// Engine controls the external playback engine.
type Engine interface {
	PlayURI(ctx context.Context, trackID string, offset time.Duration) error
	SetPlaying(ctx context.Context, playing bool) error
	Seek(ctx context.Context, position time.Duration) error
	// PlaybackState returns nil when the engine has nothing loaded.
	PlaybackState(ctx context.Context) (*track.PlayerState, error)
}

// Metrics receives controller counters. All methods must be safe for concurrent use.
type Metrics interface {
	RefinementIssued(intent string)
	RefinementFinished(intent string, appended int, err error)
	MetadataResolved(err error)
	AutoAdvanced()
	EngineCommandFailed(command string)
	QueueLength(n int)
}

type noopMetrics struct{}

func (noopMetrics) RefinementIssued(string) {}
func (noopMetrics) RefinementFinished(string, int, error) {}
func (noopMetrics) MetadataResolved(error) {}
func (noopMetrics) AutoAdvanced() {}
func (noopMetrics) EngineCommandFailed(string) {}
func (noopMetrics) QueueLength(int) {}

// Config holds controller configuration.
type Config struct {
	InitialLength        int           // Length of the initial queue request
	RefineLength         int           // Length of every refinement request
	MinimumLeft          int           // Refine when fewer slots than this remain past the position
	PollInterval         time.Duration // Engine position poll interval
	AutoAdvanceThreshold time.Duration // Schedule auto-advance when this close to the end
	TimerResolution      time.Duration // Wall clock timer tick
	RequestTimeout       time.Duration // Timeout for recommendation and engine calls
	MetadataTimeout      time.Duration // Timeout for each metadata fetch, RequestTimeout when zero
	Market               string        // Catalog market passed to the metadata resolver
}

func (c *Config) applyDefaults() {
	if c.InitialLength <= 0 {
		c.InitialLength = 20
	}
	if c.RefineLength <= 0 {
		c.RefineLength = 10
	}
	if c.MinimumLeft <= 0 {
		c.MinimumLeft = 3
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.AutoAdvanceThreshold <= 0 {
		c.AutoAdvanceThreshold = 2 * time.Second
	}
	if c.TimerResolution <= 0 {
		c.TimerResolution = 100 * time.Millisecond
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.MetadataTimeout <= 0 {
		c.MetadataTimeout = c.RequestTimeout
	}
}

// Dependencies are the collaborators of a controller.
type Dependencies struct {
	Session     *session.Session
	Recommender Recommender
	Resolver    metadata.Resolver
	Engine      Engine
	Metrics     Metrics // Optional
}

// Status is a snapshot of the controller for presentation.
type Status struct {
	State       State
	Position    int
	QueueLength int
	Track       *track.Track // nil while loading
	Loading     bool
	Paused      bool
	Scrubbing   bool
	Elapsed     time.Duration
	Duration    time.Duration
	CanNext     bool
	CanPrev     bool
	Feedback    feedback.Intent // Empty when nothing is recorded for the slot
}

type engineCommand struct {
	name string
	run  func(ctx context.Context) error
}

// Controller owns the queue of one listening session and reacts to user
// actions, metadata completions, refinement responses and engine polls.
type Controller struct {
	mu sync.Mutex

	session     *session.Session
	recommender Recommender
	engine      Engine
	metrics     Metrics

	queue    *queue.Store
	cache    *metadata.Cache
	feedback *feedback.Ledger

	// Current position state
	state        State
	initializing bool
	position     int
	elapsed      time.Duration
	paused       bool
	scrubbing    bool
	playing      int // Slot whose play command was issued last, -1 for none

	// Refinement tracking
	extending       bool // Continuation refinement outstanding
	advanceOnGrowth bool // Advance as soon as the queue grows past the tail

	// Auto-advance timer
	autoAdvanceCancel func()
	autoAdvanceGen    uint64
	autoAdvanced      bool // Auto-advance already fired for the current slot

	// Configuration
	config Config

	// Events
	eventCh      chan Event
	eventsClosed bool

	// Engine command worker
	commands        chan engineCommand
	commandSeq      uint64 // Incremented for every queued command
	pendingCommands int    // Queued but not yet delivered

	// Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController creates a new queue controller for one session.
func NewController(config Config, deps Dependencies) *Controller {
	config.applyDefaults()
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		session:     deps.Session,
		recommender: deps.Recommender,
		engine:      deps.Engine,
		metrics:     deps.Metrics,
		queue:       queue.NewStore(),
		feedback:    feedback.NewLedger(),
		state:       StateInitializing,
		playing:     -1,
		config:      config,
		eventCh:     make(chan Event, 64),
		commands:    make(chan engineCommand, 64),
		ctx:         ctx,
		cancel:      cancel,
	}
	c.cache = metadata.New(deps.Resolver, metadata.Config{
		FetchTimeout: config.MetadataTimeout,
		Market:       config.Market,
	}, c.onMetadataResolved)
	return c
}

// Events returns the event channel. It is closed by Teardown.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Initialize fetches the initial queue and starts playback of the first slot.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.state == StateExited:
		c.mu.Unlock()
		return ErrExited
	case c.state == StateReady || c.initializing:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.initializing = true
	c.mu.Unlock()

	zlog.Info().Msgf("playback: requesting initial queue: session=%s mood=%s source=%s length=%d",
		c.session.ID, c.session.Mood.Key, c.session.Source, c.config.InitialLength)

	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()
	ids, err := c.recommender.InitialQueue(reqCtx, c.session, c.config.InitialLength)
	if err == nil && len(ids) == 0 {
		err = errEmptyQueue
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.initializing = false

	if err != nil {
		zlog.Error().Err(err).Msg("playback: initial queue request failed")
		return errors.Mark(errors.Wrap(err, "failed to fetch initial queue"), ErrInitialization)
	}
	if c.state == StateExited {
		return ErrExited
	}

	n := c.queue.Append(ids...)
	c.metrics.QueueLength(n)
	c.state = StateReady
	c.position = 0

	zlog.Info().Msgf("playback: queue ready: tracks=%d", n)

	c.wg.Add(2)
	go c.runCommands()
	go c.runSynchronizer()

	c.sendEventLocked(Event{Type: EventReady, Index: 0, Count: n})
	c.activateSlotLocked()
	return nil
}

// Next advances to the next slot.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readyLocked(); err != nil {
		return err
	}
	if !c.canNextLocked() {
		return ErrAtEnd
	}
	c.advanceLocked(feedback.IntentSkip, true)
	return nil
}

// Prev steps back to the previous slot. It never refines the queue.
func (c *Controller) Prev() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readyLocked(); err != nil {
		return err
	}
	if c.position == 0 {
		return ErrAtStart
	}
	c.position--
	c.activateSlotLocked()
	return nil
}

// Like records a like for the current slot and refines the queue.
// Repeated likes or dislikes for the same slot are ignored.
func (c *Controller) Like() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readyLocked(); err != nil {
		return err
	}
	if !c.recordFeedbackLocked(feedback.IntentLike) {
		return nil
	}
	c.refineLocked(feedback.Request{
		Index:  c.position,
		Length: c.config.RefineLength,
		Intent: feedback.IntentLike,
	})
	return nil
}

// Dislike records a dislike for the current slot, refines the queue and moves on.
// Repeated likes or dislikes for the same slot are ignored.
func (c *Controller) Dislike() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readyLocked(); err != nil {
		return err
	}
	if !c.recordFeedbackLocked(feedback.IntentDislike) {
		return nil
	}
	c.refineLocked(feedback.Request{
		Index:  c.position,
		Length: c.config.RefineLength,
		Intent: feedback.IntentDislike,
	})

	if c.canNextLocked() {
		c.advanceLocked(feedback.IntentDislike, false)
	} else {
		c.advanceOnGrowth = true
	}
	return nil
}

// Seek moves playback of the current slot to position.
func (c *Controller) Seek(position time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readyLocked(); err != nil {
		return err
	}
	return c.seekLocked(position)
}

// SetPaused pauses or resumes the engine.
func (c *Controller) SetPaused(paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readyLocked(); err != nil {
		return err
	}

	if paused {
		c.cancelAutoAdvanceLocked()
	}
	c.enqueueLocked("set_playing", func(ctx context.Context) error {
		return c.engine.SetPlaying(ctx, !paused)
	})
	c.setPausedLocked(paused)
	return nil
}

// SlidingStart marks the start of a scrub. Polls stop overwriting elapsed
// until SlidingEnd.
func (c *Controller) SlidingStart() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readyLocked(); err != nil {
		return err
	}
	c.scrubbing = true
	return nil
}

// SlidingEnd commits a scrub by seeking to position.
func (c *Controller) SlidingEnd(position time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.readyLocked(); err != nil {
		return err
	}
	c.scrubbing = false
	return c.seekLocked(position)
}

// Teardown stops the controller. Later operations return ErrExited.
func (c *Controller) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateExited {
		return
	}

	zlog.Info().Msgf("playback: tearing down: session=%s position=%d queue=%d",
		c.session.ID, c.position, c.queue.Len())

	c.state = StateExited
	c.cancelAutoAdvanceLocked()
	c.sendEventLocked(Event{Type: EventExited, Index: c.position})

	c.cancel()
	c.cache.Close()

	c.eventsClosed = true
	close(c.eventCh)
}

// Wait blocks until the background goroutines stop after Teardown.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:       c.state,
		Position:    c.position,
		QueueLength: c.queue.Len(),
		Paused:      c.paused,
		Scrubbing:   c.scrubbing,
		Elapsed:     c.elapsed,
		CanNext:     c.state == StateReady && c.canNextLocked(),
		CanPrev:     c.state == StateReady && c.position > 0,
	}
	if c.state != StateReady {
		return st
	}

	st.Loading = !c.queue.IsLoaded(c.position)
	if t := c.currentTrackLocked(); t != nil {
		st.Track = t
		st.Duration = t.Duration
	}
	if intent, ok := c.feedback.Get(c.position); ok {
		st.Feedback = intent
	}
	return st
}

// Queue returns a snapshot of every slot with its metadata when resolved.
func (c *Controller) Queue() []QueueEntry {
	slots := c.queue.Snapshot()
	entries := make([]QueueEntry, len(slots))
	for i, slot := range slots {
		entries[i] = QueueEntry{Slot: slot}
		if slot.Loaded {
			if t, ok := c.cache.Get(slot.TrackID); ok {
				entries[i].Track = t
			}
		}
	}
	return entries
}

// QueueEntry is one slot of the queue snapshot.
type QueueEntry struct {
	queue.Slot
	Track *track.Track
}

func (c *Controller) readyLocked() error {
	switch c.state {
	case StateReady:
		return nil
	case StateExited:
		return ErrExited
	default:
		return ErrNotReady
	}
}

func (c *Controller) canNextLocked() bool {
	return c.position+1 < c.queue.Len()
}

func (c *Controller) remainingLocked() int {
	return c.queue.Len() - 1 - c.position
}

func (c *Controller) currentTrackLocked() *track.Track {
	if !c.queue.IsLoaded(c.position) {
		return nil
	}
	id, _ := c.queue.Get(c.position)
	t, _ := c.cache.Get(id)
	return t
}

func (c *Controller) recordFeedbackLocked(intent feedback.Intent) bool {
	if !c.feedback.Record(c.position, intent) {
		zlog.Debug().Msgf("playback: feedback already recorded, ignoring: index=%d intent=%s", c.position, intent)
		return false
	}
	zlog.Info().Msgf("playback: feedback recorded: index=%d intent=%s", c.position, intent)
	return true
}

// advanceLocked moves to the next slot. When refine is set and the queue is
// running short, a continuation refinement tagged with intent is issued.
func (c *Controller) advanceLocked(intent feedback.Intent, refine bool) {
	c.position++
	c.activateSlotLocked()

	if refine && c.remainingLocked() < c.config.MinimumLeft {
		c.continueLocked(intent)
	}
}

// activateSlotLocked makes the slot at position current: resets per-slot
// state, requests metadata and plays it if already resolved.
func (c *Controller) activateSlotLocked() {
	c.cancelAutoAdvanceLocked()
	c.autoAdvanced = false
	c.advanceOnGrowth = false
	c.elapsed = 0
	c.playing = -1

	id, _ := c.queue.Get(c.position)
	t, ok := c.cache.Resolve(id)
	if ok {
		c.queue.MarkLoaded(id)
	}

	c.sendEventLocked(Event{Type: EventTrackChanged, Index: c.position, Track: t})

	if ok {
		c.startPlaybackLocked(t)
	} else {
		zlog.Debug().Msgf("playback: metadata pending, deferring play: index=%d id=%s", c.position, id)
	}

	c.prefetchLocked(c.position + 1)
}

func (c *Controller) prefetchLocked(index int) {
	id, ok := c.queue.Get(index)
	if !ok {
		return
	}
	if _, cached := c.cache.Resolve(id); cached {
		c.queue.MarkLoaded(id)
	}
}

func (c *Controller) startPlaybackLocked(t *track.Track) {
	c.playing = c.position
	c.elapsed = 0

	zlog.Info().Msgf("playback: playing: index=%d track=%s artist=%s duration=%v",
		c.position, t.Name, t.Artist(), t.Duration)

	id := t.ID
	c.enqueueLocked("play", func(ctx context.Context) error {
		return c.engine.PlayURI(ctx, id, 0)
	})
	c.setPausedLocked(false)
	c.sendEventLocked(Event{Type: EventPlaybackStarted, Index: c.position, Track: t})
}

func (c *Controller) setPausedLocked(paused bool) {
	if c.paused == paused {
		return
	}
	c.paused = paused
	c.sendEventLocked(Event{Type: EventPauseChanged, Index: c.position, Paused: paused})
}

func (c *Controller) seekLocked(position time.Duration) error {
	t := c.currentTrackLocked()
	if t == nil {
		return ErrNotLoaded
	}

	if position < 0 {
		position = 0
	}
	if position > t.Duration {
		position = t.Duration
	}

	c.elapsed = position
	c.cancelAutoAdvanceLocked()
	c.autoAdvanced = false

	zlog.Debug().Msgf("playback: seek: index=%d position=%v", c.position, position)

	c.enqueueLocked("seek", func(ctx context.Context) error {
		return c.engine.Seek(ctx, position)
	})
	return nil
}

// onMetadataResolved is the metadata cache completion callback.
func (c *Controller) onMetadataResolved(id string, t *track.Track, err error) {
	c.metrics.MetadataResolved(err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateExited {
		zlog.Debug().Msgf("playback: discarding metadata after teardown: id=%s", id)
		return
	}

	if err != nil {
		zlog.Warn().Err(err).Msgf("playback: metadata resolution failed: id=%s", id)
		cur, _ := c.queue.Get(c.position)
		if cur == id {
			c.sendEventLocked(Event{Type: EventNotice, Index: c.position, Err: err})
		}
		return
	}

	flipped := c.queue.MarkLoaded(id)
	current := false
	for _, i := range flipped {
		c.sendEventLocked(Event{Type: EventTrackLoaded, Index: i, Track: t})
		if i == c.position {
			current = true
		}
	}

	if current && c.state == StateReady && c.playing != c.position {
		c.startPlaybackLocked(t)
	}
}

// continueLocked issues a continuation refinement unless one is outstanding.
func (c *Controller) continueLocked(intent feedback.Intent) {
	if c.extending {
		zlog.Debug().Msgf("playback: continuation already pending, skipping: intent=%s", intent)
		return
	}
	c.extending = true
	c.refineLocked(feedback.Request{
		Index:  c.position,
		Length: c.config.RefineLength,
		Intent: intent,
	})
}

func (c *Controller) refineLocked(req feedback.Request) {
	zlog.Info().Msgf("playback: refining queue: index=%d intent=%s length=%d", req.Index, req.Intent, req.Length)
	c.metrics.RefinementIssued(req.Intent.String())
	go c.refine(req)
}

// refine runs one refinement request. Teardown does not cancel it; the
// response is discarded when the controller has exited.
func (c *Controller) refine(req feedback.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.RequestTimeout)
	defer cancel()

	ids, err := c.recommender.Refine(ctx, c.session, req)
	c.metrics.RefinementFinished(req.Intent.String(), len(ids), err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !req.Intent.IsExplicit() {
		c.extending = false
	}

	if c.state == StateExited {
		zlog.Debug().Msgf("playback: discarding refinement after teardown: intent=%s", req.Intent)
		return
	}
	if err != nil {
		zlog.Warn().Err(err).Msgf("playback: refinement failed: index=%d intent=%s", req.Index, req.Intent)
		c.sendEventLocked(Event{Type: EventNotice, Index: req.Index, Intent: req.Intent, Err: err})
		return
	}

	c.appendLocked(ids, req.Intent)
}

func (c *Controller) appendLocked(ids []string, intent feedback.Intent) {
	if len(ids) == 0 {
		zlog.Debug().Msgf("playback: refinement returned no tracks: intent=%s", intent)
		return
	}

	before := c.queue.Len()
	n := c.queue.Append(ids...)
	c.metrics.QueueLength(n)

	zlog.Info().Msgf("playback: queue extended: intent=%s added=%d total=%d", intent, len(ids), n)
	c.sendEventLocked(Event{Type: EventQueueExtended, Index: before, Intent: intent, Count: len(ids)})

	if c.position != before-1 {
		return
	}
	if c.advanceOnGrowth {
		zlog.Debug().Msg("playback: queue grew past the tail, advancing")
		c.advanceLocked(feedback.IntentExtend, true)
		return
	}
	c.prefetchLocked(before)
}

// enqueueLocked hands a command to the engine worker without blocking.
func (c *Controller) enqueueLocked(name string, run func(ctx context.Context) error) {
	select {
	case c.commands <- engineCommand{name: name, run: run}:
		c.commandSeq++
		c.pendingCommands++
	case <-c.ctx.Done():
	default:
		zlog.Warn().Err(errCommandQueueFull).Msgf("playback: dropping engine command: command=%s", name)
		c.metrics.EngineCommandFailed(name)
	}
}

// runCommands delivers engine commands in issue order.
func (c *Controller) runCommands() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case cmd := <-c.commands:
			ctx, cancel := context.WithTimeout(c.ctx, c.config.RequestTimeout)
			if err := cmd.run(ctx); err != nil {
				zlog.Warn().Err(err).Msgf("playback: engine command failed: command=%s", cmd.name)
				c.metrics.EngineCommandFailed(cmd.name)
			}
			cancel()

			c.mu.Lock()
			c.pendingCommands--
			c.mu.Unlock()
		}
	}
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	if c.eventsClosed {
		return
	}
	select {
	case c.eventCh <- e:
	default:
		// Channel full, drop event
		zlog.Debug().Msgf("playback: event channel full, dropping event: type=%s", e.Type)
	}
}
