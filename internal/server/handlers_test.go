package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HyungJun-An/LookFit/internal/fitting"
	"github.com/HyungJun-An/LookFit/internal/media"
	"github.com/HyungJun-An/LookFit/internal/provider"
)

// testStore is an in-memory media.Store.
type testStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newTestStore() *testStore {
	return &testStore{objects: make(map[string][]byte)}
}

func (s *testStore) Put(_ context.Context, kind media.Kind, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	key := fmt.Sprintf("%s/%d.jpg", kind, s.puts)
	s.objects[key] = append([]byte(nil), data...)
	return key, nil
}

func (s *testStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, media.ErrNotFound
	}
	return data, nil
}

func (s *testStore) URL(key string) string {
	return "http://media.test/" + key
}

// testProvider is a scriptable provider.Client.
type testProvider struct {
	mu       sync.Mutex
	submitFn func(req provider.SubmitRequest) (string, error)
	queryFn  func(handle string) (provider.PollResult, error)
}

func (p *testProvider) Submit(_ context.Context, req provider.SubmitRequest) (string, error) {
	p.mu.Lock()
	fn := p.submitFn
	p.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return "handle-1", nil
}

func (p *testProvider) QueryStatus(_ context.Context, handle string) (provider.PollResult, error) {
	p.mu.Lock()
	fn := p.queryFn
	p.mu.Unlock()
	if fn != nil {
		return fn(handle)
	}
	return provider.PollResult{State: provider.StateRunning}, nil
}

func (p *testProvider) FetchAsset(context.Context, string) ([]byte, error) {
	return []byte("synthesized-image"), nil
}

type handlerFixture struct {
	router http.Handler
	store  *testStore
	client *testProvider
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	store := newTestStore()
	client := &testProvider{}
	poller := fitting.NewPoller(client, nil, fitting.WithDebounce(time.Nanosecond))
	svc := fitting.NewService(fitting.NewMemoryRepository(), store, client, poller, nil)
	handlers := NewHandlers(svc, store, nil)
	router := NewRouter(handlers, nil, DefaultConfig())
	return &handlerFixture{router: router, store: store, client: client}
}

// multipartUpload builds a multipart body with the given form fields and an
// optional image part.
func multipartUpload(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}
	if image != nil {
		part, err := writer.CreateFormFile("image", "photo.jpg")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

// createFitting uploads a photo and returns the decoded response.
func (f *handlerFixture) createFitting(t *testing.T, memberID string) JobResponse {
	t.Helper()
	body, contentType := multipartUpload(t, map[string]string{
		"garment_ref": "garment-42",
		"category":    "upper_body",
	}, []byte("jpeg-bytes"))

	req := httptest.NewRequest(http.MethodPost, "/fittings", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(memberHeader, memberID)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (f *handlerFixture) do(method, path, memberID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if memberID != "" {
		req.Header.Set(memberHeader, memberID)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestCreateFitting(t *testing.T) {
	f := newHandlerFixture(t)

	resp := f.createFitting(t, "member-1")

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, "upper_body", resp.Category)
	assert.Equal(t, "garment-42", resp.GarmentRef)
	assert.Contains(t, resp.UserImageURL, "http://media.test/user/")
	assert.Empty(t, resp.ResultImageURL)
	assert.Nil(t, resp.SubmittedAt)
}

func TestCreateFitting_MissingMemberHeader(t *testing.T) {
	f := newHandlerFixture(t)

	body, contentType := multipartUpload(t, map[string]string{
		"garment_ref": "garment-42",
		"category":    "upper_body",
	}, []byte("jpeg-bytes"))

	req := httptest.NewRequest(http.MethodPost, "/fittings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "MISSING_MEMBER_ID", errResp.Code)
}

func TestCreateFitting_InvalidCategory(t *testing.T) {
	f := newHandlerFixture(t)

	body, contentType := multipartUpload(t, map[string]string{
		"garment_ref": "garment-42",
		"category":    "shoes",
	}, []byte("jpeg-bytes"))

	req := httptest.NewRequest(http.MethodPost, "/fittings", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(memberHeader, "member-1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)
}

func TestCreateFitting_MissingImage(t *testing.T) {
	f := newHandlerFixture(t)

	body, contentType := multipartUpload(t, map[string]string{
		"garment_ref": "garment-42",
		"category":    "dresses",
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/fittings", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(memberHeader, "member-1")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "MISSING_IMAGE", errResp.Code)
}

func TestGenerate(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createFitting(t, "member-1")

	rec := f.do(http.MethodPost, "/fittings/"+created.ID+"/generate", "member-1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "PROCESSING", resp.Status)
	assert.NotNil(t, resp.SubmittedAt)
}

func TestGenerate_Duplicate(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createFitting(t, "member-1")

	rec := f.do(http.MethodPost, "/fittings/"+created.ID+"/generate", "member-1")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/fittings/"+created.ID+"/generate", "member-1")
	require.Equal(t, http.StatusConflict, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "INVALID_STATE", errResp.Code)
}

func TestGenerate_ProviderRejection(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createFitting(t, "member-1")

	f.client.submitFn = func(provider.SubmitRequest) (string, error) {
		return "", errors.New("unsupported image format")
	}

	rec := f.do(http.MethodPost, "/fittings/"+created.ID+"/generate", "member-1")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	// The terminal record rides along with the error status.
	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "FAILED", resp.Status)
	assert.Contains(t, resp.Error, "unsupported image format")
}

func TestGenerate_TransientProviderFailure(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createFitting(t, "member-1")

	f.client.submitFn = func(provider.SubmitRequest) (string, error) {
		return "", &provider.RetryableError{Err: errors.New("connection refused")}
	}

	rec := f.do(http.MethodPost, "/fittings/"+created.ID+"/generate", "member-1")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	// The job is still PENDING, so the retry goes through.
	f.client.submitFn = nil
	rec = f.do(http.MethodPost, "/fittings/"+created.ID+"/generate", "member-1")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetFitting(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createFitting(t, "member-1")

	rec := f.do(http.MethodGet, "/fittings/"+created.ID, "member-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "PENDING", resp.Status)
}

func TestGetFitting_NotFound(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodGet, "/fittings/nonexistent", "member-1")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetFitting_ForeignMember(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createFitting(t, "member-1")

	rec := f.do(http.MethodGet, "/fittings/"+created.ID, "member-2")
	require.Equal(t, http.StatusForbidden, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "FORBIDDEN", errResp.Code)
}

func TestGetFitting_CompletesAndServesResult(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createFitting(t, "member-1")

	rec := f.do(http.MethodPost, "/fittings/"+created.ID+"/generate", "member-1")
	require.Equal(t, http.StatusOK, rec.Code)

	f.client.queryFn = func(string) (provider.PollResult, error) {
		return provider.PollResult{State: provider.StateSucceeded, OutputURL: "http://cdn.test/out.jpg"}, nil
	}

	rec = f.do(http.MethodGet, "/fittings/"+created.ID, "member-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "COMPLETED", resp.Status)
	assert.Contains(t, resp.ResultImageURL, "http://media.test/result/")
	assert.NotNil(t, resp.CompletedAt)

	rec = f.do(http.MethodGet, "/fittings/"+created.ID+"/result", "member-1")
	require.Equal(t, http.StatusOK, rec.Code)
	data, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("synthesized-image"), data)
}

func TestGetResult_NotReady(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createFitting(t, "member-1")

	rec := f.do(http.MethodGet, "/fittings/"+created.ID+"/result", "member-1")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHistory(t *testing.T) {
	f := newHandlerFixture(t)
	for i := 0; i < 3; i++ {
		f.createFitting(t, "member-1")
	}
	f.createFitting(t, "member-2")

	rec := f.do(http.MethodGet, "/fittings?page=0&size=2", "member-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.TotalCount)
	assert.Equal(t, 2, resp.TotalPages)
	assert.Len(t, resp.Fittings, 2)
}

func TestServeMedia(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createFitting(t, "member-1")

	// UserImageURL is http://media.test/{key}; serve the key through the API.
	key := created.UserImageURL[len("http://media.test/"):]
	rec := f.do(http.MethodGet, "/media/"+key, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg-bytes", rec.Body.String())
}

func TestServeMedia_NotFound(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodGet, "/media/user/nonexistent.jpg", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
