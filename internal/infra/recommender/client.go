// Package recommender provides a client for the mood recommendation service.
package recommender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/osa030/moodbox/internal/domain/feedback"
	"github.com/osa030/moodbox/internal/domain/session"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrService is marked on every error reported by the service itself.
var ErrService = errors.New("recommendation service error")

// Client is a recommendation service client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
}

// Config represents recommendation client configuration.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64 // 0 disables throttling
	MaxRetries    int
	RetryDelay    time.Duration
}

// queueRequest is the body of POST /queue.
type queueRequest struct {
	Auth    string `json:"auth"`
	Mood    string `json:"mood"`
	Library bool   `json:"library"`
	Length  int    `json:"length"`
}

// refineRequest is the body of POST /queue/refine.
type refineRequest struct {
	Auth    string  `json:"auth"`
	Index   int     `json:"index"`
	Length  int     `json:"length"`
	Intent  string  `json:"intent"`
	WasSkip bool    `json:"was_skip"`
	Weight  float64 `json:"weight"`
}

// queueResponse is the successful response of both endpoints.
type queueResponse struct {
	Queue []string `json:"queue"`
}

// errorResponse is returned with a non-2xx status.
type errorResponse struct {
	Error string `json:"error"`
}

// statusError carries the HTTP status of a failed call.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.message)
}

// New creates a new recommendation client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("recommendation service base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// InitialQueue requests the first queue of a session.
func (c *Client) InitialQueue(ctx context.Context, sess *session.Session, length int) ([]string, error) {
	body := queueRequest{
		Auth:    sess.Token,
		Mood:    sess.Mood.Key,
		Library: sess.FromLibrary(),
		Length:  length,
	}

	ids, err := c.post(ctx, "/queue", body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch queue for mood %q", sess.Mood.Key)
	}

	zlog.Debug().Msgf("recommender: initial queue received: mood=%s tracks=%d", sess.Mood.Key, len(ids))
	return ids, nil
}

// Refine sends a feedback signal and returns identifiers to append.
func (c *Client) Refine(ctx context.Context, sess *session.Session, req feedback.Request) ([]string, error) {
	body := refineRequest{
		Auth:    sess.Token,
		Index:   req.Index,
		Length:  req.Length,
		Intent:  req.Intent.String(),
		WasSkip: req.Intent.IsSkip(),
		Weight:  req.Intent.Weight(),
	}

	ids, err := c.post(ctx, "/queue/refine", body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to refine queue at index %d", req.Index)
	}

	zlog.Debug().Msgf("recommender: refinement received: index=%d intent=%s tracks=%d", req.Index, req.Intent, len(ids))
	return ids, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}

	var ids []string
	err = c.retry(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limiter")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
		if err != nil {
			return errors.Wrap(err, "failed to create request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.Wrap(err, "failed to send request")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "failed to read response body")
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var apiError errorResponse
			msg := strings.TrimSpace(string(body))
			if err := json.Unmarshal(body, &apiError); err == nil && apiError.Error != "" {
				msg = apiError.Error
			}
			return errors.Mark(&statusError{status: resp.StatusCode, message: msg}, ErrService)
		}

		var response queueResponse
		if err := json.Unmarshal(body, &response); err != nil {
			return errors.Wrap(err, "failed to parse response")
		}
		ids = response.Queue
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// retry executes fn with retry logic for throttling and server errors.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			zlog.Debug().Err(err).Msgf("recommender: retrying request: attempt=%d", i+1)
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "request cancelled while waiting to retry")
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	return se.status == http.StatusTooManyRequests || se.status >= 500
}
