package fitting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HyungJun-An/LookFit/internal/media"
	"github.com/HyungJun-An/LookFit/internal/provider"
)

// DefaultMaxImageBytes bounds uploaded user photos to 10 MiB.
const DefaultMaxImageBytes = 10 << 20

// DefaultJobTimeout is the maximum wall-clock wait for a submitted generation,
// measured from SubmittedAt. A job still unfinished past it is failed at the
// next status query.
const DefaultJobTimeout = 5 * time.Minute

// Service orchestrates the fitting job lifecycle: it owns the state machine,
// accepts upload and generate requests, submits to the provider, and exposes
// a status query that either returns cached terminal state or reconciles a
// fresh provider status into the record.
type Service struct {
	repo          Repository
	store         media.Store
	client        provider.Client
	poller        *Poller
	logger        *slog.Logger
	maxImageBytes int
	jobTimeout    time.Duration
	now           func() time.Time
}

// ServiceOption is a function that configures a Service.
type ServiceOption func(*Service)

// WithMaxImageBytes sets the upload size bound.
func WithMaxImageBytes(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxImageBytes = n
		}
	}
}

// WithJobTimeout sets the maximum wait for a submitted generation.
func WithJobTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a fitting service.
func NewService(repo Repository, store media.Store, client provider.Client, poller *Poller, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:          repo,
		store:         store,
		client:        client,
		poller:        poller,
		logger:        logger,
		maxImageBytes: DefaultMaxImageBytes,
		jobTimeout:    DefaultJobTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob validates the upload, persists the user photo and creates a job
// in PENDING. No provider call happens here; the operation only touches
// storage and must stay cheap.
func (s *Service) CreateJob(ctx context.Context, ownerID, garmentRef string, category Category, image []byte) (*Job, error) {
	if ownerID == "" || garmentRef == "" {
		return nil, fmt.Errorf("%w: owner and garment reference are required", ErrInvalidInput)
	}
	if !category.IsValid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, category)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: image payload is empty", ErrInvalidInput)
	}
	if len(image) > s.maxImageBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrPayloadTooLarge, len(image), s.maxImageBytes)
	}

	sourceRef, err := s.store.Put(ctx, media.KindUserImage, image)
	if err != nil {
		return nil, fmt.Errorf("store user image: %w", err)
	}

	job := NewJob(ownerID, garmentRef, category, sourceRef)
	if err := s.repo.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	s.logger.Info("fitting job created",
		slog.String("job_id", job.ID),
		slog.String("owner_id", ownerID),
		slog.String("category", string(category)),
		slog.Int("image_bytes", len(image)),
	)

	return job, nil
}

// SubmitGeneration submits a PENDING job to the provider. Duplicate calls are
// rejected with ErrInvalidState rather than re-submitted; a transient provider
// failure leaves the job in PENDING and surfaces ErrRetryable so the caller
// can safely try again.
func (s *Service) SubmitGeneration(ctx context.Context, jobID, callerID string) (*Job, error) {
	job, err := s.authorize(ctx, jobID, callerID)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot submit job in status %s", ErrInvalidState, job.Status)
	}

	req := provider.SubmitRequest{
		HumanImageURL:   s.store.URL(job.SourceImageRef),
		GarmentImageURL: job.GarmentRef,
		Category:        string(job.Category),
	}

	handle, err := s.client.Submit(ctx, req)
	if err != nil {
		if provider.IsRetryable(err) {
			// The job stays PENDING; the precondition above makes a retry safe.
			return nil, fmt.Errorf("%w: %w", ErrRetryable, err)
		}
		// The provider rejected the request itself; retrying the same
		// inputs cannot succeed, so the job fails without ever processing.
		failed, _, casErr := s.repo.CompareAndSwapStatus(ctx, job.ID, StatusPending, Update{
			Status:      StatusFailed,
			ErrorDetail: err.Error(),
			CompletedAt: s.now(),
		})
		if casErr != nil {
			return nil, fmt.Errorf("record submit rejection: %w", casErr)
		}
		s.logger.Warn("generation rejected by provider",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return failed, fmt.Errorf("%w: %w", ErrProviderRejected, err)
	}

	updated, swapped, err := s.repo.CompareAndSwapStatus(ctx, job.ID, StatusPending, Update{
		Status:         StatusProcessing,
		ProviderHandle: handle,
		SubmittedAt:    s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("record submission: %w", err)
	}
	if !swapped {
		// A concurrent submit won the race; its handle stands.
		return updated, fmt.Errorf("%w: job already in status %s", ErrInvalidState, updated.Status)
	}

	s.logger.Info("generation submitted",
		slog.String("job_id", job.ID),
		slog.String("provider_handle", handle),
	)

	return updated, nil
}

// GetStatus returns the job's current state. Terminal and PENDING jobs are
// returned as stored without contacting the provider; PROCESSING jobs are
// reconciled against a fresh provider status through the polling coordinator.
func (s *Service) GetStatus(ctx context.Context, jobID, callerID string) (*Job, error) {
	job, err := s.authorize(ctx, jobID, callerID)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusProcessing {
		return job, nil
	}
	return s.refreshProcessing(ctx, job)
}

// GetJob returns the stored record without any provider contact.
func (s *Service) GetJob(ctx context.Context, jobID, callerID string) (*Job, error) {
	return s.authorize(ctx, jobID, callerID)
}

// GetResult returns the synthesized image bytes for a COMPLETED job.
func (s *Service) GetResult(ctx context.Context, jobID, callerID string) ([]byte, error) {
	job, err := s.authorize(ctx, jobID, callerID)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: job is in status %s", ErrResultNotReady, job.Status)
	}
	data, err := s.store.Get(ctx, job.ResultImageRef)
	if err != nil {
		return nil, fmt.Errorf("load result image: %w", err)
	}
	return data, nil
}

// HistoryPage is one page of a member's fitting history.
type HistoryPage struct {
	Jobs       []*Job
	TotalCount int
	Page       int
	PageSize   int
	TotalPages int
}

// ListHistory returns the member's jobs, newest first.
func (s *Service) ListHistory(ctx context.Context, ownerID string, page, size int) (*HistoryPage, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 10
	}
	if size > 100 {
		size = 100
	}

	jobs, total, err := s.repo.ListByOwner(ctx, ownerID, page, size)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	totalPages := (total + size - 1) / size
	return &HistoryPage{
		Jobs:       jobs,
		TotalCount: total,
		Page:       page,
		PageSize:   size,
		TotalPages: totalPages,
	}, nil
}

// authorize loads the job and verifies ownership.
func (s *Service) authorize(ctx context.Context, jobID, callerID string) (*Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: job ID is required", ErrInvalidInput)
	}
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != callerID {
		return nil, ErrForbidden
	}
	return job, nil
}

// refreshProcessing queries the provider for a PROCESSING job and reconciles
// the outcome into the record. Transient failures leave the job untouched and
// surface ErrRetryable unless the job-level timeout has elapsed, which
// converts them into a terminal FAILED.
func (s *Service) refreshProcessing(ctx context.Context, job *Job) (*Job, error) {
	res, err := s.poller.Query(ctx, job.ID, job.ProviderHandle)
	if err != nil {
		if provider.IsRetryable(err) {
			if s.timedOut(job) {
				return s.failJob(ctx, job, timeoutDetail)
			}
			return nil, fmt.Errorf("%w: %w", ErrRetryable, err)
		}
		return s.failJob(ctx, job, fmt.Sprintf("provider status query failed: %s", err))
	}

	switch res.State {
	case provider.StateSucceeded:
		return s.completeJob(ctx, job, res.OutputURL)
	case provider.StateFailed:
		reason := res.Reason
		if reason == "" {
			reason = "generation failed"
		}
		return s.failJob(ctx, job, reason)
	default:
		if s.timedOut(job) {
			return s.failJob(ctx, job, timeoutDetail)
		}
		return job, nil
	}
}

// completeJob fetches the result asset, stores it, and applies the terminal
// COMPLETED transition. The work runs on a context detached from the caller
// so an abandoned poll still lands the result for everyone else.
func (s *Service) completeJob(ctx context.Context, job *Job, outputURL string) (*Job, error) {
	dctx := context.WithoutCancel(ctx)

	asset, err := s.client.FetchAsset(dctx, outputURL)
	if err != nil {
		s.logger.Error("result asset fetch failed",
			slog.String("job_id", job.ID),
			slog.String("output_url", outputURL),
			slog.String("error", err.Error()),
		)
		return s.failJob(ctx, job, retrievalDetail)
	}

	resultRef, err := s.store.Put(dctx, media.KindResultImage, asset)
	if err != nil {
		s.logger.Error("result image store failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return s.failJob(ctx, job, retrievalDetail)
	}

	updated, swapped, err := s.repo.CompareAndSwapStatus(dctx, job.ID, StatusProcessing, Update{
		Status:         StatusCompleted,
		ResultImageRef: resultRef,
		CompletedAt:    s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("record completion: %w", err)
	}
	s.poller.Forget(job.ID)

	if swapped {
		s.logger.Info("fitting job completed",
			slog.String("job_id", job.ID),
			slog.String("result_ref", resultRef),
		)
	}
	// On a lost race the stored terminal record wins; return it either way.
	return updated, nil
}

// failJob applies the terminal FAILED transition with the given detail.
// A concurrent reconciliation may have already finished the job; the loser
// returns the record the winner wrote.
func (s *Service) failJob(ctx context.Context, job *Job, detail string) (*Job, error) {
	updated, swapped, err := s.repo.CompareAndSwapStatus(context.WithoutCancel(ctx), job.ID, job.Status, Update{
		Status:      StatusFailed,
		ErrorDetail: detail,
		CompletedAt: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("record failure: %w", err)
	}
	s.poller.Forget(job.ID)

	if swapped {
		s.logger.Warn("fitting job failed",
			slog.String("job_id", job.ID),
			slog.String("detail", detail),
		)
	}
	return updated, nil
}

// timedOut reports whether the job has waited longer than the configured
// bound since submission.
func (s *Service) timedOut(job *Job) bool {
	if job.SubmittedAt.IsZero() {
		return false
	}
	return s.now().Sub(job.SubmittedAt) > s.jobTimeout
}
