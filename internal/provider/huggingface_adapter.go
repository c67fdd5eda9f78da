package provider

import (
	"context"
	"fmt"

	"github.com/HyungJun-An/LookFit/internal/huggingface"
)

// HuggingFaceAdapter adapts the Hugging Face Space client to the Client interface.
type HuggingFaceAdapter struct {
	client *huggingface.Client
}

// NewHuggingFaceAdapter creates a new Hugging Face provider adapter.
func NewHuggingFaceAdapter(client *huggingface.Client) *HuggingFaceAdapter {
	return &HuggingFaceAdapter{client: client}
}

// Submit enqueues a try-on generation on the Space and returns the event ID
// as the provider handle.
func (a *HuggingFaceAdapter) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	handle, err := a.client.SubmitTryOn(ctx, req.HumanImageURL, req.GarmentImageURL, req.Category)
	if err != nil {
		return "", wrapHuggingFaceErr("submit", err)
	}
	return handle, nil
}

// QueryStatus checks the state of a queued Gradio event.
func (a *HuggingFaceAdapter) QueryStatus(ctx context.Context, handle string) (PollResult, error) {
	result, err := a.client.GetResult(ctx, handle)
	if err != nil {
		return PollResult{}, wrapHuggingFaceErr("query status", err)
	}

	switch result.Status {
	case huggingface.StatusSucceeded:
		return PollResult{State: StateSucceeded, OutputURL: result.OutputURL}, nil
	case huggingface.StatusFailed:
		reason := result.Error
		if reason == "" {
			reason = "generation failed"
		}
		return PollResult{State: StateFailed, Reason: reason}, nil
	default:
		return PollResult{State: StateRunning}, nil
	}
}

// FetchAsset downloads the result image from the Space's file endpoint.
func (a *HuggingFaceAdapter) FetchAsset(ctx context.Context, outputURL string) ([]byte, error) {
	data, err := a.client.Download(ctx, outputURL)
	if err != nil {
		return nil, wrapHuggingFaceErr("fetch asset", err)
	}
	return data, nil
}

// wrapHuggingFaceErr preserves the transient/terminal split across the adapter.
func wrapHuggingFaceErr(op string, err error) error {
	wrapped := fmt.Errorf("huggingface adapter %s: %w", op, err)
	if huggingface.IsRetryable(err) {
		return &RetryableError{Err: wrapped}
	}
	return wrapped
}

// Compile-time check that HuggingFaceAdapter implements Client.
var _ Client = (*HuggingFaceAdapter)(nil)
