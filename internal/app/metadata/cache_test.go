package metadata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/moodbox/internal/domain/track"
)

type fakeResolver struct {
	mu      sync.Mutex
	calls   map[string]int
	markets []string
	release chan struct{}
	fail    map[string]error
	missing map[string]bool
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		calls:   make(map[string]int),
		fail:    make(map[string]error),
		missing: make(map[string]bool),
	}
}

func (f *fakeResolver) GetTrack(ctx context.Context, trackID string, market ...string) (*track.Track, error) {
	f.mu.Lock()
	f.calls[trackID]++
	f.markets = append(f.markets, market...)
	release := f.release
	err := f.fail[trackID]
	missing := f.missing[trackID]
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if missing {
		return nil, nil
	}
	return &track.Track{ID: trackID, Name: "Song " + trackID, Duration: 3 * time.Minute}, nil
}

func (f *fakeResolver) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type completion struct {
	id    string
	track *track.Track
	err   error
}

func recorder() (CompletionFunc, <-chan completion) {
	ch := make(chan completion, 16)
	return func(id string, t *track.Track, err error) {
		ch <- completion{id: id, track: t, err: err}
	}, ch
}

func waitCompletion(t *testing.T, ch <-chan completion) completion {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
		return completion{}
	}
}

func TestCache_ResolveThenCached(t *testing.T) {
	resolver := newFakeResolver()
	onComplete, done := recorder()
	c := New(resolver, Config{Market: "JP"}, onComplete)
	defer c.Close()

	got, ok := c.Resolve("a")
	assert.False(t, ok)
	assert.Nil(t, got)

	res := waitCompletion(t, done)
	require.NoError(t, res.err)
	assert.Equal(t, "a", res.id)
	assert.Equal(t, "Song a", res.track.Name)

	got, ok = c.Resolve("a")
	assert.True(t, ok)
	assert.Equal(t, "Song a", got.Name)
	assert.Equal(t, 1, resolver.callCount("a"))
	assert.False(t, c.inFlight("a"))
	assert.Equal(t, []string{"JP"}, resolver.markets)
}

func TestCache_InFlightDeduplication(t *testing.T) {
	resolver := newFakeResolver()
	resolver.release = make(chan struct{})
	onComplete, done := recorder()
	c := New(resolver, Config{}, onComplete)
	defer c.Close()

	for i := 0; i < 3; i++ {
		_, ok := c.Resolve("x")
		assert.False(t, ok)
	}
	assert.True(t, c.inFlight("x"))

	close(resolver.release)

	res := waitCompletion(t, done)
	require.NoError(t, res.err)
	assert.Equal(t, 1, resolver.callCount("x"))

	got, ok := c.Get("x")
	require.True(t, ok)
	assert.Equal(t, res.track, got)

	select {
	case extra := <-done:
		t.Fatalf("unexpected second completion: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCache_FailureIsNotCached(t *testing.T) {
	resolver := newFakeResolver()
	resolver.fail["bad"] = errors.New("503 Service Unavailable")
	onComplete, done := recorder()
	c := New(resolver, Config{}, onComplete)
	defer c.Close()

	c.Resolve("bad")
	res := waitCompletion(t, done)
	require.Error(t, res.err)
	assert.Nil(t, res.track)
	assert.Contains(t, res.err.Error(), "bad")
	assert.False(t, c.inFlight("bad"))

	_, ok := c.Get("bad")
	assert.False(t, ok)

	// A later resolve retries.
	resolver.mu.Lock()
	delete(resolver.fail, "bad")
	resolver.mu.Unlock()

	c.Resolve("bad")
	res = waitCompletion(t, done)
	require.NoError(t, res.err)
	assert.Equal(t, 2, resolver.callCount("bad"))
}

func TestCache_MissingTrack(t *testing.T) {
	resolver := newFakeResolver()
	resolver.missing["ghost"] = true
	onComplete, done := recorder()
	c := New(resolver, Config{}, onComplete)
	defer c.Close()

	c.Resolve("ghost")
	res := waitCompletion(t, done)
	require.Error(t, res.err)
	assert.True(t, errors.Is(res.err, ErrTrackNotFound))
	assert.Nil(t, res.track)
}

func TestCache_FetchTimeout(t *testing.T) {
	resolver := newFakeResolver()
	resolver.release = make(chan struct{})
	defer close(resolver.release)
	onComplete, done := recorder()
	c := New(resolver, Config{FetchTimeout: 20 * time.Millisecond}, onComplete)
	defer c.Close()

	c.Resolve("slow")
	res := waitCompletion(t, done)
	assert.True(t, errors.Is(res.err, context.DeadlineExceeded))
	assert.False(t, c.inFlight("slow"))
}

func TestCache_ResolveFromFailureCallbackRetries(t *testing.T) {
	resolver := newFakeResolver()
	resolver.fail["flaky"] = errors.New("502 Bad Gateway")

	var c *Cache
	var once sync.Once
	retried := make(chan struct{})
	completions := make(chan completion, 4)
	c = New(resolver, Config{}, func(id string, tr *track.Track, err error) {
		once.Do(func() {
			// The controller re-requests the current slot while the
			// failed call is still returning.
			resolver.mu.Lock()
			delete(resolver.fail, "flaky")
			resolver.mu.Unlock()
			c.Resolve(id)
			time.Sleep(50 * time.Millisecond)
			close(retried)
		})
		completions <- completion{id: id, track: tr, err: err}
	})
	defer c.Close()

	c.Resolve("flaky")
	<-retried

	var failed, loaded int
	for i := 0; i < 2; i++ {
		res := waitCompletion(t, completions)
		if res.err != nil {
			failed++
			continue
		}
		loaded++
		assert.Equal(t, "Song flaky", res.track.Name)
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, loaded)

	assert.Equal(t, 2, resolver.callCount("flaky"))
	assert.False(t, c.inFlight("flaky"))
	got, ok := c.Resolve("flaky")
	assert.True(t, ok)
	assert.Equal(t, "Song flaky", got.Name)
}

func TestCache_CloseStopsNewFetches(t *testing.T) {
	resolver := newFakeResolver()
	c := New(resolver, Config{}, nil)
	c.Close()

	_, ok := c.Resolve("a")
	assert.False(t, ok)
	assert.False(t, c.inFlight("a"))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, resolver.callCount("a"))
}
