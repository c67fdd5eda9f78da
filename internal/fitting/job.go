// Package fitting provides the virtual-fitting job aggregate and the
// orchestration around it: creating jobs from uploaded user photos, submitting
// generation requests to an external try-on provider, and reconciling provider
// status into the job record.
package fitting

import (
	"time"

	"github.com/google/uuid"
)

// Category identifies the garment region the try-on model should replace.
type Category string

const (
	// CategoryUpperBody targets shirts, jackets and other tops.
	CategoryUpperBody Category = "upper_body"
	// CategoryLowerBody targets trousers, skirts and other bottoms.
	CategoryLowerBody Category = "lower_body"
	// CategoryDresses targets full-length dresses.
	CategoryDresses Category = "dresses"
)

// IsValid returns true if the category is a recognized value.
func (c Category) IsValid() bool {
	return c == CategoryUpperBody || c == CategoryLowerBody || c == CategoryDresses
}

// Status represents the current state of a fitting job.
type Status string

const (
	// StatusPending indicates the user photo is stored and the job is waiting
	// for a generation request.
	StatusPending Status = "PENDING"
	// StatusProcessing indicates the generation request was accepted by the
	// provider and synthesis is in progress.
	StatusProcessing Status = "PROCESSING"
	// StatusCompleted indicates the synthesized image is stored and ready.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates generation failed; ErrorDetail carries the reason.
	StatusFailed Status = "FAILED"
)

// IsTerminal returns true if no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// validTransitions defines which status transitions are allowed.
// PENDING moves to FAILED directly when the provider rejects the submission
// itself, without ever reaching PROCESSING.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// CanTransition reports whether a transition from one status to another is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job represents one user-initiated virtual-fitting request.
//
// SourceImageRef, Category, OwnerID and GarmentRef are fixed at creation.
// Only Status, ProviderHandle, ResultImageRef, ErrorDetail and the
// SubmittedAt/CompletedAt timestamps mutate afterwards, and every mutation
// goes through Repository.CompareAndSwapStatus so concurrent reconciliations
// cannot both apply a terminal transition.
type Job struct {
	// ID is the unique identifier for this job, assigned at creation.
	ID string
	// OwnerID is the member who created the job. Every operation verifies
	// the caller against it.
	OwnerID string
	// GarmentRef references the garment being fitted. It is opaque to this
	// package and handed to the provider as-is.
	GarmentRef string
	// Category is the garment region, fixed at upload time.
	Category Category
	// SourceImageRef is the media store key of the uploaded user photo.
	SourceImageRef string
	// ResultImageRef is the media store key of the synthesized image.
	// Empty until the job reaches COMPLETED.
	ResultImageRef string
	// ProviderHandle is the provider-assigned prediction identifier.
	// Empty until a generation request is accepted.
	ProviderHandle string
	// Status is the current lifecycle state.
	Status Status
	// ErrorDetail is the human-readable failure reason. Empty unless FAILED.
	ErrorDetail string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// SubmittedAt is when the generation request was accepted by the provider.
	// The job-level timeout is measured from it.
	SubmittedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// NewJob creates a job in PENDING with a generated UUID.
func NewJob(ownerID, garmentRef string, category Category, sourceImageRef string) *Job {
	return &Job{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		GarmentRef:     garmentRef,
		Category:       category,
		SourceImageRef: sourceImageRef,
		Status:         StatusPending,
		CreatedAt:      time.Now(),
	}
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// Clone creates a copy of the job for safe hand-out from repositories.
func (j *Job) Clone() *Job {
	c := *j
	return &c
}
