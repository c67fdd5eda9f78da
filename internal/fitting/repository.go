package fitting

import (
	"context"
	"time"
)

// Update describes the mutable fields applied by a status transition.
// Zero-valued fields are left untouched, which keeps the record append-mostly:
// a handle, result reference or timestamp is written once and never cleared.
type Update struct {
	// Status is the target state. Always applied.
	Status Status
	// ProviderHandle is set when the provider accepts a submission.
	ProviderHandle string
	// ResultImageRef is set on the transition to COMPLETED.
	ResultImageRef string
	// ErrorDetail is set on the transition to FAILED.
	ErrorDetail string
	// SubmittedAt is set on the transition to PROCESSING.
	SubmittedAt time.Time
	// CompletedAt is set on any terminal transition.
	CompletedAt time.Time
}

// apply copies the non-zero update fields onto a job.
func (u Update) apply(j *Job) {
	j.Status = u.Status
	if u.ProviderHandle != "" {
		j.ProviderHandle = u.ProviderHandle
	}
	if u.ResultImageRef != "" {
		j.ResultImageRef = u.ResultImageRef
	}
	if u.ErrorDetail != "" {
		j.ErrorDetail = u.ErrorDetail
	}
	if !u.SubmittedAt.IsZero() {
		j.SubmittedAt = u.SubmittedAt
	}
	if !u.CompletedAt.IsZero() {
		j.CompletedAt = u.CompletedAt
	}
}

// Repository defines the persistence port for fitting jobs.
type Repository interface {
	// Insert persists a newly created job.
	Insert(ctx context.Context, job *Job) error

	// FindByID retrieves a job by its identifier.
	// Returns ErrJobNotFound if the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// ListByOwner returns a page of the member's jobs, newest first,
	// together with the total count for that member.
	ListByOwner(ctx context.Context, ownerID string, page, size int) ([]*Job, int, error)

	// ListByStatus returns all jobs currently in the given status.
	// Used by the background reconciler to find PROCESSING jobs.
	ListByStatus(ctx context.Context, status Status) ([]*Job, error)

	// CompareAndSwapStatus applies the update only if the job's current
	// status equals expected. It returns the job as stored after the call
	// and whether the swap was applied; on conflict the caller gets the
	// record written by whoever won the race. Returns ErrJobNotFound if the
	// job does not exist.
	CompareAndSwapStatus(ctx context.Context, id string, expected Status, update Update) (*Job, bool, error)
}
