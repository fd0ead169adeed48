// Package metadata provides the per-controller track metadata cache.
package metadata

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/osa030/moodbox/internal/domain/track"
)

// ErrTrackNotFound is returned when the resolver has no metadata for an ID.
var ErrTrackNotFound = errors.New("track not found")

// Resolver fetches track metadata from the catalog.
type Resolver interface {
	GetTrack(ctx context.Context, trackID string, market ...string) (*track.Track, error)
}

// CompletionFunc is invoked once per finished fetch, on the fetching goroutine.
// t is nil when err is non-nil.
type CompletionFunc func(id string, t *track.Track, err error)

// Config holds cache configuration.
type Config struct {
	FetchTimeout time.Duration // Timeout applied to each resolver call
	Market       string        // Optional market passed to the resolver
}

// Cache resolves track metadata lazily and de-duplicates in-flight fetches.
// Entries are never evicted.
type Cache struct {
	mu       sync.Mutex
	resolver Resolver
	config   Config
	entries  map[string]*track.Track
	inflight map[string]struct{}
	group    singleflight.Group

	onComplete CompletionFunc

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a cache backed by resolver. onComplete may be nil.
func New(resolver Resolver, config Config, onComplete CompletionFunc) *Cache {
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		resolver:   resolver,
		config:     config,
		entries:    make(map[string]*track.Track),
		inflight:   make(map[string]struct{}),
		onComplete: onComplete,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Resolve returns cached metadata for id. When id is not cached it starts an
// asynchronous fetch (unless one is already running) and returns false.
func (c *Cache) Resolve(id string) (*track.Track, bool) {
	c.mu.Lock()
	if t, ok := c.entries[id]; ok {
		c.mu.Unlock()
		return t, true
	}
	if _, ok := c.inflight[id]; ok {
		c.mu.Unlock()
		return nil, false
	}
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return nil, false
	}
	c.inflight[id] = struct{}{}
	c.mu.Unlock()

	zlog.Debug().Msgf("metadata: fetch started: track_id=%s", id)
	go func() {
		_, _, _ = c.group.Do(id, func() (any, error) {
			return c.load(id)
		})
	}()
	return nil, false
}

// Get returns cached metadata without fetching.
func (c *Cache) Get(id string) (*track.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.entries[id]
	return t, ok
}

// inFlight reports whether a fetch for id is running.
func (c *Cache) inFlight(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[id]
	return ok
}

// Close cancels outstanding fetches. Resolve starts no new fetches afterwards.
func (c *Cache) Close() {
	c.cancel()
}

// load performs one resolver call inside the singleflight group.
func (c *Cache) load(id string) (*track.Track, error) {
	if t, ok := c.Get(id); ok {
		c.mu.Lock()
		c.finishLocked(id)
		c.mu.Unlock()
		return t, nil
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.config.FetchTimeout)
	defer cancel()

	var market []string
	if c.config.Market != "" {
		market = append(market, c.config.Market)
	}

	t, err := c.resolver.GetTrack(ctx, id, market...)
	if err == nil && t == nil {
		err = ErrTrackNotFound
	}

	c.mu.Lock()
	c.finishLocked(id)
	if err == nil {
		c.entries[id] = t
	}
	callback := c.onComplete
	c.mu.Unlock()

	if err != nil {
		err = errors.Wrapf(err, "failed to resolve track %s", id)
		t = nil
		zlog.Debug().Msgf("metadata: fetch failed: track_id=%s error=%v", id, err)
	} else {
		zlog.Debug().Msgf("metadata: fetch completed: track_id=%s name=%s", id, t.Name)
	}

	if callback != nil {
		callback(id, t, err)
	}
	return t, err
}

// finishLocked clears the in-flight marker and detaches the running call
// from the group, so a Resolve issued from the completion callback starts
// a new fetch instead of joining this one.
func (c *Cache) finishLocked(id string) {
	delete(c.inflight, id)
	c.group.Forget(id)
}
