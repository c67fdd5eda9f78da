package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/HyungJun-An/LookFit/internal/fitting"
	"github.com/HyungJun-An/LookFit/internal/media"
)

// memberHeader identifies the authenticated member. Authentication itself
// happens upstream; this service only reads the result.
const memberHeader = "X-Member-Id"

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service        *fitting.Service
	store          media.Store
	validator      *validator.Validate
	logger         *slog.Logger
	maxUploadBytes int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxUploadBytes bounds the multipart request body size.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *fitting.Service, store media.Store, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:        service,
		store:          store,
		validator:      validator.New(),
		logger:         logger,
		maxUploadBytes: fitting.DefaultMaxImageBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateFitting handles POST /fittings requests. The body is a multipart
// form with garment_ref and category fields and the user photo as "image".
func (h *Handlers) CreateFitting(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}

	// A small allowance on top of the image bound covers the form framing.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+64*1024)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "image payload too large", "PAYLOAD_TOO_LARGE")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart body", "INVALID_MULTIPART")
		return
	}

	req := uploadRequest{
		GarmentRef: r.FormValue("garment_ref"),
		Category:   r.FormValue("category"),
	}
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("upload validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required", "MISSING_IMAGE")
		return
	}
	defer func() { _ = file.Close() }()

	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image file", "INVALID_IMAGE")
		return
	}

	job, err := h.service.CreateJob(r.Context(), memberID, req.GarmentRef, fitting.Category(req.Category), image)
	if err != nil {
		h.writeServiceError(w, err, "create fitting")
		return
	}

	writeJSON(w, http.StatusCreated, toJobResponse(job, h.store))
}

// Generate handles POST /fittings/{id}/generate requests.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}

	job, err := h.service.SubmitGeneration(r.Context(), r.PathValue("id"), memberID)
	if err != nil {
		if errors.Is(err, fitting.ErrProviderRejected) && job != nil {
			// The rejection is terminal and already recorded on the job.
			writeJSON(w, http.StatusBadGateway, toJobResponse(job, h.store))
			return
		}
		h.writeServiceError(w, err, "submit generation")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(job, h.store))
}

// GetFitting handles GET /fittings/{id} requests, the polling endpoint.
func (h *Handlers) GetFitting(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}

	job, err := h.service.GetStatus(r.Context(), r.PathValue("id"), memberID)
	if err != nil {
		h.writeServiceError(w, err, "get fitting status")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(job, h.store))
}

// History handles GET /fittings requests.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}

	page := queryInt(r, "page", 0)
	size := queryInt(r, "size", 10)

	history, err := h.service.ListHistory(r.Context(), memberID, page, size)
	if err != nil {
		h.writeServiceError(w, err, "list fitting history")
		return
	}

	fittings := make([]JobResponse, 0, len(history.Jobs))
	for _, job := range history.Jobs {
		fittings = append(fittings, toJobResponse(job, h.store))
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Fittings:   fittings,
		TotalCount: history.TotalCount,
		Page:       history.Page,
		PageSize:   history.PageSize,
		TotalPages: history.TotalPages,
	})
}

// GetResult handles GET /fittings/{id}/result requests, streaming the
// synthesized image bytes.
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}

	data, err := h.service.GetResult(r.Context(), r.PathValue("id"), memberID)
	if err != nil {
		h.writeServiceError(w, err, "get fitting result")
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("failed to write result image", slog.String("error", err.Error()))
	}
}

// ServeMedia handles GET /media/{key...} requests for locally stored objects.
func (h *Handlers) ServeMedia(w http.ResponseWriter, r *http.Request) {
	data, err := h.store.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			writeError(w, http.StatusNotFound, "media object not found", "MEDIA_NOT_FOUND")
			return
		}
		h.logger.Error("failed to load media object", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load media object", "MEDIA_LOAD_FAILED")
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// memberID extracts the member header or rejects the request.
func (h *Handlers) memberID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(memberHeader)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "member ID header is required", "MISSING_MEMBER_ID")
		return "", false
	}
	return id, true
}

// writeServiceError maps fitting errors onto HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, fitting.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
	case errors.Is(err, fitting.ErrPayloadTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error(), "PAYLOAD_TOO_LARGE")
	case errors.Is(err, fitting.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "fitting not found", "FITTING_NOT_FOUND")
	case errors.Is(err, fitting.ErrForbidden):
		writeError(w, http.StatusForbidden, "fitting belongs to another member", "FORBIDDEN")
	case errors.Is(err, fitting.ErrInvalidState), errors.Is(err, fitting.ErrResultNotReady):
		writeError(w, http.StatusConflict, err.Error(), "INVALID_STATE")
	case errors.Is(err, fitting.ErrRetryable):
		w.Header().Set("Retry-After", "2")
		writeError(w, http.StatusServiceUnavailable, "provider temporarily unavailable, retry later", "PROVIDER_UNAVAILABLE")
	case errors.Is(err, fitting.ErrProviderRejected):
		writeError(w, http.StatusBadGateway, err.Error(), "PROVIDER_REJECTED")
	default:
		h.logger.Error("request failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
