package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

// AnkiConnect protocol version this client speaks. The bridge rejects
// requests carrying a newer version than it supports.
const ProtocolVersion = 6

// Retry and backoff constants.
const (
	defaultMaxRetries = 4
	baseBackoff       = 500 * time.Millisecond
	maxBackoff        = 15 * time.Second
	backoffFactor     = 2.0
	jitterFraction    = 0.25
	userAgent         = "ankimd/0.1"

	defaultHTTPTimeout = 30 * time.Second
)

// Client talks to an AnkiConnect endpoint: one HTTP POST per logical
// request, JSON envelope in, {result, error} envelope out. It handles
// request construction, retry with exponential backoff, and error
// classification.
type Client struct {
	baseURL    string
	key        string
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries int

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries overrides the retry count for transport failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithSleepFunc replaces the backoff sleep. Tests use this to run retries
// without real delays.
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleepFunc = fn }
}

// New creates an AnkiConnect client. baseURL is typically
// "http://127.0.0.1:8765"; key is the optional AnkiConnect API key and may
// be empty.
func New(baseURL, key string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:    baseURL,
		key:        key,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logger,
		maxRetries: defaultMaxRetries,
		sleepFunc:  timeSleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// envelope is the AnkiConnect request wire format.
type envelope struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Key     string `json:"key,omitempty"`
	Params  any    `json:"params,omitempty"`
}

// response is the AnkiConnect response wire format. Error is a pointer so
// the JSON null of a successful call is distinguishable from an empty
// message.
type response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// invoke executes one AnkiConnect action: marshal the envelope, POST it,
// decode the {result, error} response into out. Transport failures and
// non-2xx statuses retry with exponential backoff before surfacing
// ErrUnreachable; a non-null protocol error surfaces as ErrAction without
// retry because the bridge answered.
func (c *Client) invoke(ctx context.Context, action string, params, out any) error {
	payload, err := json.Marshal(envelope{
		Action:  action,
		Version: ProtocolVersion,
		Key:     c.key,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("anki: marshaling %s request: %w", action, err)
	}

	var attempt int
	for {
		body, status, err := c.postOnce(ctx, payload)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return fmt.Errorf("anki: %s canceled: %w", action, ctx.Err())
			}

			if attempt < c.maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after transport error",
					slog.String("action", action),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return fmt.Errorf("anki: %s canceled: %w", action, sleepErr)
				}

				attempt++

				continue
			}

			return &BridgeError{
				Action:  action,
				Message: fmt.Sprintf("after %d retries: %v", c.maxRetries, err),
				Err:     ErrUnreachable,
			}
		}

		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			if attempt < c.maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after HTTP error",
					slog.String("action", action),
					slog.Int("status", status),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return fmt.Errorf("anki: %s canceled: %w", action, sleepErr)
				}

				attempt++

				continue
			}

			return &BridgeError{
				Action:     action,
				StatusCode: status,
				Message:    string(body),
				Err:        ErrUnreachable,
			}
		}

		return c.decodeResponse(action, body, out)
	}
}

// decodeResponse unmarshals the {result, error} envelope. A body that is
// not valid JSON is a transport-level failure; a non-null error string is a
// bridge-reported action failure.
func (c *Client) decodeResponse(action string, body []byte, out any) error {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return &BridgeError{
			Action:  action,
			Message: fmt.Sprintf("malformed response: %v", err),
			Err:     ErrUnreachable,
		}
	}

	if resp.Error != nil && *resp.Error != "" {
		return &BridgeError{
			Action:  action,
			Message: *resp.Error,
			Err:     ErrAction,
		}
	}

	if out == nil || len(resp.Result) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.Result, out); err != nil {
		return &BridgeError{
			Action:  action,
			Message: fmt.Sprintf("decoding result: %v", err),
			Err:     ErrUnreachable,
		}
	}

	return nil
}

// postOnce executes a single HTTP POST (no retry) and returns the response
// body and status code.
func (c *Client) postOnce(ctx context.Context, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response body: %w", err)
	}

	return body, resp.StatusCode, nil
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	// Apply ±25% jitter.
	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
