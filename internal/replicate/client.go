package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Static errors for Replicate client operations.
var (
	// ErrAPIKeyNotSet is returned when no API key was provided and the
	// REPLICATE_API_KEY environment variable is not set.
	ErrAPIKeyNotSet = errors.New("replicate: REPLICATE_API_KEY environment variable is not set")
	// ErrModelVersionRequired is returned when the model version is not provided.
	ErrModelVersionRequired = errors.New("replicate: model version is required")
	// ErrPredictionIDRequired is returned when the prediction ID is not provided.
	ErrPredictionIDRequired = errors.New("replicate: prediction ID is required")
	// ErrNoPredictionID is returned when the create response contains no prediction ID.
	ErrNoPredictionID = errors.New("replicate: create failed: no prediction ID returned")
	// ErrCreateFailed is returned when the prediction create is rejected.
	ErrCreateFailed = errors.New("replicate: create prediction failed")
	// ErrServerError is returned when the API responds with a 5xx status code.
	ErrServerError = errors.New("replicate: server error")
	// ErrRateLimited is returned when the API responds with a 429 status code.
	ErrRateLimited = errors.New("replicate: rate limited")
	// ErrRequestFailed is returned when the request fails with another non-2xx status.
	ErrRequestFailed = errors.New("replicate: request failed")
)

// Client is an HTTP client for the Replicate predictions API.
type Client struct {
	apiKey       string
	modelVersion string
	baseURL      string
	httpClient   *http.Client
	maxRetries   int
	baseBackoff  time.Duration
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL for the Replicate API.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(c *Client) {
		c.baseBackoff = d
	}
}

// NewClient creates a new Replicate client for the given model version.
// The API key can be set via the WithAPIKey option. If not provided,
// it is read from the environment variable REPLICATE_API_KEY.
func NewClient(modelVersion string, opts ...ClientOption) (*Client, error) {
	if modelVersion == "" {
		return nil, ErrModelVersionRequired
	}

	c := &Client{
		modelVersion: modelVersion,
		baseURL:      "https://api.replicate.com/v1",
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		maxRetries:   3,
		baseBackoff:  1 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("REPLICATE_API_KEY")
	}
	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return c, nil
}

// CreatePrediction submits a try-on generation request and returns the
// prediction ID assigned by Replicate.
func (c *Client) CreatePrediction(ctx context.Context, humanImageURL, garmentImageURL, category string) (string, error) {
	reqBody := predictionRequest{
		Version: c.modelVersion,
		Input: predictionInput{
			GarmImg:    garmentImageURL,
			HumanImg:   humanImageURL,
			Category:   category,
			GarmentDes: "a clothing item",
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("replicate: marshal request: %w", err)
	}

	url := c.baseURL + "/predictions"

	var resp predictionResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, url, bodyBytes, &resp); err != nil {
		return "", err
	}

	if resp.ID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrCreateFailed, resp.Error)
		}
		return "", ErrNoPredictionID
	}

	return resp.ID, nil
}

// GetPrediction queries the status of a prediction.
func (c *Client) GetPrediction(ctx context.Context, predictionID string) (QueryResult, error) {
	if predictionID == "" {
		return QueryResult{}, ErrPredictionIDRequired
	}

	url := fmt.Sprintf("%s/predictions/%s", c.baseURL, predictionID)

	var resp predictionResponse
	if err := c.doRequestWithRetry(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return QueryResult{}, err
	}

	result := QueryResult{Status: resp.Status}
	switch resp.Status {
	case StatusSucceeded:
		result.OutputURL = resp.outputURL()
	case StatusFailed, StatusCanceled:
		result.Error = resp.Error
	}

	return result, nil
}

// Download fetches the result asset from its output URL.
func (c *Client) Download(ctx context.Context, outputURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, outputURL, nil)
	if err != nil {
		return nil, fmt.Errorf("replicate: create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("replicate: download failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w with status %d", ErrRequestFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("replicate: read asset: %w", err)}
	}
	return data, nil
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
func (c *Client) doRequestWithRetry(ctx context.Context, method, url string, body []byte, result any) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("replicate: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := c.doRequest(ctx, method, url, body, result)
		if err == nil {
			return nil
		}

		if !IsRetryable(err) {
			return err
		}

		lastErr = err
	}

	return &retryableError{err: fmt.Errorf("replicate: max retries exceeded: %w", lastErr)}
}

// doRequest performs a single HTTP request.
func (c *Client) doRequest(ctx context.Context, method, url string, body []byte, result any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("replicate: create request: %w", err)
	}

	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("replicate: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("replicate: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("replicate: unmarshal response: %w", err)
		}
	}

	return nil
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
