package huggingface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient_MissingSpaceURL(t *testing.T) {
	_, err := NewClient("")
	if !errors.Is(err, ErrSpaceURLRequired) {
		t.Errorf("expected ErrSpaceURLRequired, got %v", err)
	}
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	client, err := NewClient("https://space.test/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.spaceURL != "https://space.test" {
		t.Errorf("expected trailing slash trimmed, got %q", client.spaceURL)
	}
}

func TestClient_SubmitTryOn(t *testing.T) {
	var gotAuth string
	var gotBody callRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/call/tryon" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(callResponse{EventID: "evt-42"})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, WithToken("hf-token"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	eventID, err := client.SubmitTryOn(context.Background(), "http://media.test/user/1.jpg", "http://garments.test/9.jpg", "lower_body")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eventID != "evt-42" {
		t.Errorf("expected event ID evt-42, got %s", eventID)
	}
	if gotAuth != "Bearer hf-token" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
	if len(gotBody.Data) != 3 {
		t.Fatalf("expected 3 data elements, got %d", len(gotBody.Data))
	}
	if gotBody.Data[0] != "http://media.test/user/1.jpg" || gotBody.Data[2] != "lower_body" {
		t.Errorf("unexpected data payload: %v", gotBody.Data)
	}
}

func TestClient_SubmitTryOn_NoEventID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, _ := NewClient(server.URL)

	_, err := client.SubmitTryOn(context.Background(), "h", "g", "dresses")
	if !errors.Is(err, ErrNoEventID) {
		t.Errorf("expected ErrNoEventID, got %v", err)
	}
}

func TestClient_SubmitTryOn_QueueFull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, _ := NewClient(server.URL)

	_, err := client.SubmitTryOn(context.Background(), "h", "g", "upper_body")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if !IsRetryable(err) {
		t.Error("a full queue must be retryable")
	}
}

func TestClient_GetResult(t *testing.T) {
	tests := []struct {
		name       string
		stream     string
		wantStatus Status
		wantOutput string
		wantError  string
	}{
		{
			name:       "complete with file object",
			stream:     "event: complete\ndata: [{\"url\":\"http://cdn.test/out.jpg\",\"path\":\"/tmp/out.jpg\"}]\n\n",
			wantStatus: StatusSucceeded,
			wantOutput: "http://cdn.test/out.jpg",
		},
		{
			name:       "complete with bare string",
			stream:     "event: complete\ndata: [\"http://cdn.test/out.jpg\"]\n\n",
			wantStatus: StatusSucceeded,
			wantOutput: "http://cdn.test/out.jpg",
		},
		{
			name:       "error with reason",
			stream:     "event: error\ndata: \"GPU quota exceeded\"\n\n",
			wantStatus: StatusFailed,
			wantError:  "GPU quota exceeded",
		},
		{
			name:       "error without reason",
			stream:     "event: error\ndata: null\n\n",
			wantStatus: StatusFailed,
			wantError:  "generation failed",
		},
		{
			name:       "heartbeat only means still running",
			stream:     "event: heartbeat\ndata: {}\n\n",
			wantStatus: StatusRunning,
		},
		{
			name:       "generating progress then complete",
			stream:     "event: generating\ndata: [0.4]\n\nevent: complete\ndata: [\"http://cdn.test/out.jpg\"]\n\n",
			wantStatus: StatusSucceeded,
			wantOutput: "http://cdn.test/out.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/call/tryon/evt-42" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, tt.stream)
			}))
			defer server.Close()

			client, _ := NewClient(server.URL)

			result, err := client.GetResult(context.Background(), "evt-42")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, result.Status)
			}
			if result.OutputURL != tt.wantOutput {
				t.Errorf("expected output %q, got %q", tt.wantOutput, result.OutputURL)
			}
			if result.Error != tt.wantError {
				t.Errorf("expected error %q, got %q", tt.wantError, result.Error)
			}
		})
	}
}

func TestClient_GetResult_MissingEventID(t *testing.T) {
	client, _ := NewClient("https://space.test")

	_, err := client.GetResult(context.Background(), "")
	if !errors.Is(err, ErrEventIDRequired) {
		t.Errorf("expected ErrEventIDRequired, got %v", err)
	}
}

func TestClient_GetResult_WaitWindowElapsed(t *testing.T) {
	// The stream stays open past the poll wait without a terminal event.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: heartbeat\ndata: {}\n\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, WithPollWait(100*time.Millisecond))

	result, err := client.GetResult(context.Background(), "evt-42")
	if err != nil {
		t.Fatalf("expected a still-running report, got error: %v", err)
	}
	if result.Status != StatusRunning {
		t.Errorf("expected status %s, got %s", StatusRunning, result.Status)
	}
}

func TestClient_GetResult_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "space is restarting", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, _ := NewClient(server.URL)

	_, err := client.GetResult(context.Background(), "evt-42")
	if !errors.Is(err, ErrServerError) {
		t.Errorf("expected ErrServerError, got %v", err)
	}
	if !IsRetryable(err) {
		t.Error("a 5xx must be retryable")
	}
}

func TestClient_Download(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer server.Close()

	client, _ := NewClient("https://space.test")

	data, err := client.Download(context.Background(), server.URL+"/file=out.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("unexpected asset bytes: %q", data)
	}
}

func TestParseOutputURL(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantURL string
		wantOK  bool
	}{
		{"bare string", `["http://x/y.jpg"]`, "http://x/y.jpg", true},
		{"file object with url", `[{"url":"http://x/y.jpg","path":"/tmp/y.jpg"}]`, "http://x/y.jpg", true},
		{"file object path only", `[{"path":"/tmp/y.jpg"}]`, "/tmp/y.jpg", true},
		{"progress payload", `[0.25]`, "", false},
		{"not an array", `{"msg":"estimation"}`, "", false},
		{"empty array", `[]`, "", false},
		{"not json", `hello`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, ok := parseOutputURL(tt.data)
			if ok != tt.wantOK {
				t.Fatalf("parseOutputURL(%q) ok = %v, want %v", tt.data, ok, tt.wantOK)
			}
			if url != tt.wantURL {
				t.Errorf("parseOutputURL(%q) = %q, want %q", tt.data, url, tt.wantURL)
			}
		})
	}
}
