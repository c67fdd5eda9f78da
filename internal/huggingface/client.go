// Package huggingface provides an HTTP client for a Hugging Face Space
// running the IDM-VTON virtual try-on model behind the Gradio queue API.
//
// Submitting returns an event ID; the result endpoint replays the queue
// events for that ID as a server-sent event stream until the generation
// completes or errors.
package huggingface

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Static errors for Hugging Face client operations.
var (
	// ErrSpaceURLRequired is returned when the Space URL is not provided.
	ErrSpaceURLRequired = errors.New("huggingface: space URL is required")
	// ErrEventIDRequired is returned when the event ID is not provided.
	ErrEventIDRequired = errors.New("huggingface: event ID is required")
	// ErrNoEventID is returned when the call response contains no event ID.
	ErrNoEventID = errors.New("huggingface: call failed: no event ID returned")
	// ErrServerError is returned when the Space responds with a 5xx status code.
	ErrServerError = errors.New("huggingface: server error")
	// ErrRateLimited is returned when the Space responds with a 429 status code.
	ErrRateLimited = errors.New("huggingface: rate limited")
	// ErrRequestFailed is returned when the request fails with another non-2xx status.
	ErrRequestFailed = errors.New("huggingface: request failed")
	// ErrNoOutputURL is returned when a completed event carries no result URL.
	ErrNoOutputURL = errors.New("huggingface: no output URL in completed event")
)

// Status represents the state of a queued Gradio event.
type Status string

// Event states derived from the SSE stream.
const (
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// QueryResult contains the result of querying an event's status.
type QueryResult struct {
	Status    Status
	OutputURL string // Result image URL (only set when Status is StatusSucceeded)
	Error     string // Error message (only set when Status is StatusFailed)
}

// Client is an HTTP client for the Gradio queue API of a try-on Space.
type Client struct {
	spaceURL   string
	apiName    string
	token      string
	httpClient *http.Client
	pollWait   time.Duration
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithToken sets an optional Hugging Face access token.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithAPIName sets the Gradio endpoint name. Defaults to "tryon".
func WithAPIName(name string) ClientOption {
	return func(c *Client) {
		c.apiName = name
	}
}

// WithPollWait bounds how long a single result query listens to the event
// stream before reporting the generation as still running.
func WithPollWait(d time.Duration) ClientOption {
	return func(c *Client) {
		c.pollWait = d
	}
}

// NewClient creates a new client for the given Space base URL.
// The token is optional; public Spaces accept anonymous calls. If not
// provided via WithToken, it is read from the environment variable HF_TOKEN.
func NewClient(spaceURL string, opts ...ClientOption) (*Client, error) {
	if spaceURL == "" {
		return nil, ErrSpaceURLRequired
	}

	c := &Client{
		spaceURL:   strings.TrimSuffix(spaceURL, "/"),
		apiName:    "tryon",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		pollWait:   10 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.token == "" {
		c.token = os.Getenv("HF_TOKEN")
	}

	return c, nil
}

// callRequest is the request body for POST /call/{api_name}.
type callRequest struct {
	Data []any `json:"data"`
}

// callResponse is the response for POST /call/{api_name}.
type callResponse struct {
	EventID string `json:"event_id"`
}

// SubmitTryOn enqueues a try-on generation and returns the event ID.
func (c *Client) SubmitTryOn(ctx context.Context, humanImageURL, garmentImageURL, category string) (string, error) {
	body, err := json.Marshal(callRequest{
		Data: []any{humanImageURL, garmentImageURL, category},
	})
	if err != nil {
		return "", fmt.Errorf("huggingface: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/call/%s", c.spaceURL, c.apiName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("huggingface: create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("huggingface: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("huggingface: read response: %w", err)}
	}
	if err := statusError(resp.StatusCode, respBody); err != nil {
		return "", err
	}

	var call callResponse
	if err := json.Unmarshal(respBody, &call); err != nil {
		return "", fmt.Errorf("huggingface: unmarshal response: %w", err)
	}
	if call.EventID == "" {
		return "", ErrNoEventID
	}

	return call.EventID, nil
}

// GetResult replays the event stream for the given event ID. It listens for
// up to the configured poll wait; if no terminal event arrives in that window
// the generation is reported as still running.
func (c *Client) GetResult(ctx context.Context, eventID string) (QueryResult, error) {
	if eventID == "" {
		return QueryResult{}, ErrEventIDRequired
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.pollWait)
	defer cancel()

	url := fmt.Sprintf("%s/call/%s/%s", c.spaceURL, c.apiName, eventID)

	req, err := http.NewRequestWithContext(waitCtx, http.MethodGet, url, nil)
	if err != nil {
		return QueryResult{}, fmt.Errorf("huggingface: create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return QueryResult{Status: StatusRunning}, nil
		}
		return QueryResult{}, &retryableError{err: fmt.Errorf("huggingface: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp.StatusCode, nil); err != nil {
		return QueryResult{}, err
	}

	result, err := c.scanEvents(resp.Body)
	if err != nil {
		// The wait window closing mid-stream means the generation has not
		// finished yet, not that the provider is unreachable.
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return QueryResult{Status: StatusRunning}, nil
		}
		return QueryResult{}, err
	}
	return result, nil
}

// scanEvents reads SSE lines until a terminal event or end of stream.
func (c *Client) scanEvents(body io.Reader) (QueryResult, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	event := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			switch event {
			case "complete", "":
				url, ok := parseOutputURL(data)
				if !ok {
					// Progress payloads also arrive as data lines; keep reading.
					continue
				}
				if url == "" {
					return QueryResult{}, ErrNoOutputURL
				}
				return QueryResult{Status: StatusSucceeded, OutputURL: url}, nil
			case "error":
				reason := parseErrorReason(data)
				return QueryResult{Status: StatusFailed, Error: reason}, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return QueryResult{}, &retryableError{err: fmt.Errorf("huggingface: read event stream: %w", err)}
	}

	// Stream ended without a terminal event: the queue has not finished.
	return QueryResult{Status: StatusRunning}, nil
}

// Download fetches the result asset from its output URL.
func (c *Client) Download(ctx context.Context, outputURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, outputURL, nil)
	if err != nil {
		return nil, fmt.Errorf("huggingface: create download request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("huggingface: download failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w with status %d", ErrRequestFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("huggingface: read asset: %w", err)}
	}
	return data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// parseOutputURL extracts the result URL from a completion payload. Gradio
// returns a data array whose first element is either a bare URL string or a
// file object with url/path fields.
func parseOutputURL(data string) (string, bool) {
	var payload []json.RawMessage
	if err := json.Unmarshal([]byte(data), &payload); err != nil || len(payload) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(payload[0], &s); err == nil {
		return s, true
	}

	var file struct {
		URL  string `json:"url"`
		Path string `json:"path"`
	}
	if err := json.Unmarshal(payload[0], &file); err == nil {
		if file.URL != "" {
			return file.URL, true
		}
		return file.Path, true
	}
	return "", false
}

// parseErrorReason extracts a readable reason from an error payload.
func parseErrorReason(data string) string {
	var s string
	if err := json.Unmarshal([]byte(data), &s); err == nil && s != "" {
		return s
	}
	if data == "" || data == "null" {
		return "generation failed"
	}
	return data
}

func statusError(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	if code >= 500 {
		return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, code, string(body))}
	}
	if code == http.StatusTooManyRequests {
		return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(body))}
	}
	return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, code, string(body))
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// IsRetryable returns true if the error represents a transient failure.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
