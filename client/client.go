// Package client is the caller-side tracking agent embedded in public
// profile pages' backends. It mirrors the server's 24-hour dedup window
// with a local suppression cache to skip calls that would not be counted,
// and retries transient failures with capped, increasing delays. The
// server-side guard stays authoritative; nothing here is trusted by it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	defaultMaxAttempts       = 3
	defaultRetryDelay        = 500 * time.Millisecond
	defaultSuppressionWindow = 24 * time.Hour
	defaultRequestTimeout    = 5 * time.Second
)

// Config tunes the agent. Zero values use the defaults.
type Config struct {
	// BaseURL of the tracking service, e.g. "https://api.example.com".
	BaseURL string

	// HTTPClient to use; a client with a short timeout is built when nil.
	HTTPClient *http.Client

	MaxAttempts       int
	RetryDelay        time.Duration
	SuppressionWindow time.Duration
}

// Result is the outcome of one submission as seen by the caller.
type Result struct {
	Success        bool   `json:"success"`
	Tracked        bool   `json:"tracked"`
	Reason         string `json:"reason,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`

	// Suppressed is set when the local cache skipped the call entirely.
	Suppressed bool `json:"-"`
}

// Client is the tracking agent. Safe for concurrent use.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	maxAttempts       int
	retryDelay        time.Duration
	suppressionWindow time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time

	now func() time.Time
}

// New builds a tracking agent from the config.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	window := cfg.SuppressionWindow
	if window <= 0 {
		window = defaultSuppressionWindow
	}

	return &Client{
		baseURL:           cfg.BaseURL,
		httpClient:        httpClient,
		maxAttempts:       maxAttempts,
		retryDelay:        retryDelay,
		suppressionWindow: window,
		lastSent:          make(map[string]time.Time),
		now:               time.Now,
	}
}

type trackPayload struct {
	LinkID   string `json:"linkId"`
	ClientID string `json:"clientId,omitempty"`
}

// Track submits one click. A submission already sent for the link within
// the suppression window is skipped locally and reported as suppressed.
// Network errors and 503 responses are retried with increasing delay up to
// the attempt cap; every other response is terminal.
func (c *Client) Track(ctx context.Context, linkID, clientID string) (*Result, error) {
	if linkID == "" {
		return nil, fmt.Errorf("track: linkID is required")
	}

	if c.suppressed(linkID) {
		return &Result{Success: true, Suppressed: true, Reason: "suppressed"}, nil
	}

	body, err := json.Marshal(trackPayload{LinkID: linkID, ClientID: clientID})
	if err != nil {
		return nil, fmt.Errorf("track: encode payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, retryable, err := c.send(ctx, body)
		if err != nil {
			lastErr = err
			if retryable {
				continue
			}
			return nil, err
		}

		if result.Tracked || result.Reason == "duplicate" || result.Reason == "rate_limited_duplicate" {
			c.recordSent(linkID)
		}
		return result, nil
	}

	return nil, fmt.Errorf("track: attempts exhausted: %w", lastErr)
}

// TrackAsync is the fire-and-forget variant used from page rendering
// paths: it never blocks the caller and swallows every failure.
func (c *Client) TrackAsync(ctx context.Context, linkID, clientID string) {
	go func() {
		_, _ = c.Track(ctx, linkID, clientID)
	}()
}

func (c *Client) send(ctx context.Context, body []byte) (result *Result, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/track", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("track: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("track: send: %w", err)
	}
	defer resp.Body.Close()

	// 503 is the one status the server marks as retry-later; every 4xx is
	// an explicit do-not-retry signal.
	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, true, fmt.Errorf("track: service unavailable")
	}
	if resp.StatusCode >= 400 {
		return nil, false, fmt.Errorf("track: rejected with status %d", resp.StatusCode)
	}

	var decoded Result
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, false, fmt.Errorf("track: decode response: %w", err)
	}
	return &decoded, false, nil
}

func (c *Client) suppressed(linkID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sent, ok := c.lastSent[linkID]
	return ok && c.now().Sub(sent) < c.suppressionWindow
}

// recordSent stamps the link and prunes entries older than the window.
func (c *Client) recordSent(linkID string) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastSent[linkID] = now
	for id, sent := range c.lastSent {
		if now.Sub(sent) >= c.suppressionWindow {
			delete(c.lastSent, id)
		}
	}
}

// Snapshot serializes the suppression cache so a caller can persist it
// across restarts.
func (c *Client) Snapshot() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.Marshal(c.lastSent)
}

// Restore replaces the suppression cache with a previously taken snapshot,
// dropping entries already outside the window.
func (c *Client) Restore(data []byte) error {
	var restored map[string]time.Time
	if err := json.Unmarshal(data, &restored); err != nil {
		return fmt.Errorf("restore suppression cache: %w", err)
	}

	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSent = make(map[string]time.Time, len(restored))
	for id, sent := range restored {
		if now.Sub(sent) < c.suppressionWindow {
			c.lastSent[id] = sent
		}
	}
	return nil
}
