// Package server provides the HTTP server for the LookFit fitting API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/HyungJun-An/LookFit/internal/fitting"
	"github.com/HyungJun-An/LookFit/internal/media"
)

// uploadRequest carries the non-file fields of the multipart upload form.
type uploadRequest struct {
	// GarmentRef references the garment image being fitted.
	GarmentRef string `validate:"required"`
	// Category is the garment region.
	Category string `validate:"required,oneof=upper_body lower_body dresses"`
}

// JobResponse is the HTTP representation of a fitting job.
type JobResponse struct {
	// ID is the unique identifier for the fitting job.
	ID string `json:"fitting_id"`
	// Status is the current job state.
	Status string `json:"status"`
	// Category is the garment region selected at upload.
	Category string `json:"category"`
	// GarmentRef references the garment being fitted.
	GarmentRef string `json:"garment_ref"`
	// UserImageURL is where the uploaded photo can be fetched.
	UserImageURL string `json:"user_image_url"`
	// ResultImageURL is where the synthesized image can be fetched (COMPLETED only).
	ResultImageURL string `json:"result_image_url,omitempty"`
	// Error is the failure reason (FAILED only).
	Error string `json:"error,omitempty"`
	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`
	// SubmittedAt is when the generation was accepted by the provider.
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	// CompletedAt is when the job reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// toJobResponse maps a job onto its HTTP representation.
func toJobResponse(job *fitting.Job, store media.Store) JobResponse {
	resp := JobResponse{
		ID:           job.ID,
		Status:       string(job.Status),
		Category:     string(job.Category),
		GarmentRef:   job.GarmentRef,
		UserImageURL: store.URL(job.SourceImageRef),
		Error:        job.ErrorDetail,
		CreatedAt:    job.CreatedAt,
	}
	if job.ResultImageRef != "" {
		resp.ResultImageURL = store.URL(job.ResultImageRef)
	}
	if !job.SubmittedAt.IsZero() {
		t := job.SubmittedAt
		resp.SubmittedAt = &t
	}
	if !job.CompletedAt.IsZero() {
		t := job.CompletedAt
		resp.CompletedAt = &t
	}
	return resp
}

// HistoryResponse is one page of a member's fitting history.
type HistoryResponse struct {
	// Fittings are the jobs on this page, newest first.
	Fittings []JobResponse `json:"fittings"`
	// TotalCount is the member's total number of jobs.
	TotalCount int `json:"total_count"`
	// Page is the zero-based page number.
	Page int `json:"page"`
	// PageSize is the requested page size.
	PageSize int `json:"page_size"`
	// TotalPages is the number of pages available.
	TotalPages int `json:"total_pages"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
