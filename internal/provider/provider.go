// Package provider defines the common interface for virtual try-on providers.
// Both the Replicate and Hugging Face adapters implement this interface.
package provider

import (
	"context"
	"errors"
)

// State represents the provider-side status of a generation request.
type State string

// Provider states normalized across adapters.
const (
	StateRunning   State = "RUNNING"   // Generation accepted and in progress
	StateSucceeded State = "SUCCEEDED" // Result asset is available at OutputURL
	StateFailed    State = "FAILED"    // Generation failed; Reason is set
)

// SubmitRequest contains the inputs for a try-on generation request.
type SubmitRequest struct {
	HumanImageURL   string // URL of the uploaded user photo
	GarmentImageURL string // URL of the garment image
	Category        string // Garment region: upper_body, lower_body or dresses
}

// PollResult contains the outcome of a status query.
type PollResult struct {
	State     State
	OutputURL string // Location of the result asset (only when SUCCEEDED)
	Reason    string // Failure reason (only when FAILED)
}

// Client defines the interface for try-on generation providers.
type Client interface {
	// Submit sends a generation request and returns the provider-assigned
	// handle used to query its status later.
	Submit(ctx context.Context, req SubmitRequest) (handle string, err error)

	// QueryStatus checks the status of an accepted generation request.
	QueryStatus(ctx context.Context, handle string) (PollResult, error)

	// FetchAsset downloads the result asset.
	FetchAsset(ctx context.Context, outputURL string) ([]byte, error)
}

// RetryableError marks a transient failure (network error, timeout, 5xx,
// rate limit). Callers keep the job in its current state and try again;
// any other error from a Client is terminal.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
