package recommender

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/osa030/moodbox/internal/domain/feedback"
	"github.com/osa030/moodbox/internal/domain/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, source string) *session.Session {
	t.Helper()
	sess, err := session.New("test_token", "sad bops", source)
	require.NoError(t, err)
	return sess
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := New(Config{BaseURL: url, MaxRetries: 3, RetryDelay: time.Millisecond})
	require.NoError(t, err)
	return client
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestInitialQueue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/queue", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test_token", body["auth"])
		assert.Equal(t, "sad bops", body["mood"])
		assert.Equal(t, true, body["library"])
		assert.Equal(t, float64(20), body["length"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"queue":["a","b","c"]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/")
	ids, err := client.InitialQueue(context.Background(), newTestSession(t, "library"), 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestRefine(t *testing.T) {
	tests := []struct {
		name    string
		intent  feedback.Intent
		wasSkip bool
		weight  float64
	}{
		{name: "skip", intent: feedback.IntentSkip, wasSkip: true, weight: -0.25},
		{name: "extend", intent: feedback.IntentExtend, wasSkip: false, weight: 0},
		{name: "like", intent: feedback.IntentLike, wasSkip: false, weight: 0.5},
		{name: "dislike", intent: feedback.IntentDislike, wasSkip: false, weight: -0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/queue/refine", r.URL.Path)

				var body refineRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "test_token", body.Auth)
				assert.Equal(t, 4, body.Index)
				assert.Equal(t, 10, body.Length)
				assert.Equal(t, string(tt.intent), body.Intent)
				assert.Equal(t, tt.wasSkip, body.WasSkip)
				assert.InDelta(t, tt.weight, body.Weight, 1e-9)

				_, _ = w.Write([]byte(`{"queue":["x"]}`))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			ids, err := client.Refine(context.Background(), newTestSession(t, "catalog"),
				feedback.Request{Index: 4, Length: 10, Intent: tt.intent})
			require.NoError(t, err)
			assert.Equal(t, []string{"x"}, ids)
		})
	}
}

func TestServiceError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unknown mood"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.InitialQueue(context.Background(), newTestSession(t, "library"), 20)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrService))
	assert.Contains(t, err.Error(), "unknown mood")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"queue":["a"]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ids, err := client.InitialQueue(context.Background(), newTestSession(t, "library"), 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Refine(context.Background(), newTestSession(t, "library"),
		feedback.Request{Index: 0, Length: 10, Intent: feedback.IntentLike})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), calls.Load())
}

func TestMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.InitialQueue(context.Background(), newTestSession(t, "library"), 20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
		{name: "bad request", err: &statusError{status: 400}, want: false},
		{name: "throttled", err: &statusError{status: 429}, want: true},
		{name: "server", err: errors.Wrap(&statusError{status: 502}, "wrapped"), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}
