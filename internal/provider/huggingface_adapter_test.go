package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HyungJun-An/LookFit/internal/huggingface"
)

func newHuggingFaceAdapter(t *testing.T, handler http.Handler) (*HuggingFaceAdapter, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := huggingface.NewClient(server.URL)
	require.NoError(t, err)
	return NewHuggingFaceAdapter(client), server
}

func TestHuggingFaceAdapter_Submit(t *testing.T) {
	adapter, _ := newHuggingFaceAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/call/tryon", r.URL.Path)
		_, _ = w.Write([]byte(`{"event_id":"evt-9"}`))
	}))

	handle, err := adapter.Submit(context.Background(), SubmitRequest{
		HumanImageURL:   "http://media.test/user/1.jpg",
		GarmentImageURL: "http://garments.test/9.jpg",
		Category:        "dresses",
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-9", handle)
}

func TestHuggingFaceAdapter_Submit_QueueFullIsRetryable(t *testing.T) {
	adapter, _ := newHuggingFaceAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusTooManyRequests)
	}))

	_, err := adapter.Submit(context.Background(), SubmitRequest{})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestHuggingFaceAdapter_QueryStatus(t *testing.T) {
	tests := []struct {
		name       string
		stream     string
		wantState  State
		wantOutput string
		wantReason string
	}{
		{
			name:       "still queued",
			stream:     "event: heartbeat\ndata: {}\n\n",
			wantState:  StateRunning,
		},
		{
			name:       "succeeded",
			stream:     "event: complete\ndata: [{\"url\":\"http://cdn.test/out.jpg\"}]\n\n",
			wantState:  StateSucceeded,
			wantOutput: "http://cdn.test/out.jpg",
		},
		{
			name:       "failed with reason",
			stream:     "event: error\ndata: \"GPU quota exceeded\"\n\n",
			wantState:  StateFailed,
			wantReason: "GPU quota exceeded",
		},
		{
			name:       "failed without reason",
			stream:     "event: error\ndata: null\n\n",
			wantState:  StateFailed,
			wantReason: "generation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, _ := newHuggingFaceAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = w.Write([]byte(tt.stream))
			}))

			result, err := adapter.QueryStatus(context.Background(), "evt-9")
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, result.State)
			assert.Equal(t, tt.wantOutput, result.OutputURL)
			assert.Equal(t, tt.wantReason, result.Reason)
		})
	}
}

func TestHuggingFaceAdapter_QueryStatus_ServerErrorIsRetryable(t *testing.T) {
	adapter, _ := newHuggingFaceAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "space restarting", http.StatusServiceUnavailable)
	}))

	_, err := adapter.QueryStatus(context.Background(), "evt-9")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestHuggingFaceAdapter_FetchAsset(t *testing.T) {
	adapter, server := newHuggingFaceAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("image-bytes"))
	}))

	data, err := adapter.FetchAsset(context.Background(), server.URL+"/file=out.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(&RetryableError{Err: context.Canceled}))
}
