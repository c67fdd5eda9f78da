package provider

import (
	"context"
	"fmt"

	"github.com/HyungJun-An/LookFit/internal/replicate"
)

// ReplicateAdapter adapts the Replicate client to the Client interface.
type ReplicateAdapter struct {
	client *replicate.Client
}

// NewReplicateAdapter creates a new Replicate provider adapter.
func NewReplicateAdapter(client *replicate.Client) *ReplicateAdapter {
	return &ReplicateAdapter{client: client}
}

// Submit sends a try-on generation request to Replicate.
func (a *ReplicateAdapter) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	handle, err := a.client.CreatePrediction(ctx, req.HumanImageURL, req.GarmentImageURL, req.Category)
	if err != nil {
		return "", wrapReplicateErr("submit", err)
	}
	return handle, nil
}

// QueryStatus checks the status of a Replicate prediction.
func (a *ReplicateAdapter) QueryStatus(ctx context.Context, handle string) (PollResult, error) {
	result, err := a.client.GetPrediction(ctx, handle)
	if err != nil {
		return PollResult{}, wrapReplicateErr("query status", err)
	}

	switch result.Status {
	case replicate.StatusSucceeded:
		return PollResult{State: StateSucceeded, OutputURL: result.OutputURL}, nil
	case replicate.StatusFailed, replicate.StatusCanceled:
		reason := result.Error
		if reason == "" {
			reason = string(result.Status)
		}
		return PollResult{State: StateFailed, Reason: reason}, nil
	default:
		// starting and processing both map onto a single running state.
		return PollResult{State: StateRunning}, nil
	}
}

// FetchAsset downloads the result image from Replicate's delivery URL.
func (a *ReplicateAdapter) FetchAsset(ctx context.Context, outputURL string) ([]byte, error) {
	data, err := a.client.Download(ctx, outputURL)
	if err != nil {
		return nil, wrapReplicateErr("fetch asset", err)
	}
	return data, nil
}

// wrapReplicateErr preserves the transient/terminal split across the adapter.
func wrapReplicateErr(op string, err error) error {
	wrapped := fmt.Errorf("replicate adapter %s: %w", op, err)
	if replicate.IsRetryable(err) {
		return &RetryableError{Err: wrapped}
	}
	return wrapped
}

// Compile-time check that ReplicateAdapter implements Client.
var _ Client = (*ReplicateAdapter)(nil)
