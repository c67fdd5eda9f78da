package fitting

import "errors"

// Static errors for fitting operations. Handlers map these onto HTTP status
// codes; everything else surfaces as an internal error.
var (
	// ErrInvalidInput is returned for an unrecognized category or an empty
	// image payload. No state is changed.
	ErrInvalidInput = errors.New("fitting: invalid input")
	// ErrPayloadTooLarge is returned when the uploaded image exceeds the
	// configured size bound.
	ErrPayloadTooLarge = errors.New("fitting: image payload too large")
	// ErrJobNotFound is returned when a job cannot be found by ID.
	ErrJobNotFound = errors.New("fitting: job not found")
	// ErrForbidden is returned when the caller does not own the job.
	ErrForbidden = errors.New("fitting: job belongs to another member")
	// ErrInvalidState is returned when an operation is not valid for the
	// job's current status, e.g. submitting a job that is not PENDING.
	ErrInvalidState = errors.New("fitting: invalid job state")
	// ErrRetryable is returned when a transient provider or network failure
	// interrupted the request. The job keeps its current non-terminal status
	// and the caller may retry.
	ErrRetryable = errors.New("fitting: temporary provider failure, retry later")
	// ErrProviderRejected is returned when the provider rejected the
	// generation request outright. The job is FAILED; retrying is pointless.
	ErrProviderRejected = errors.New("fitting: generation rejected by provider")
	// ErrResultNotReady is returned when the result image is requested for a
	// job that has not completed.
	ErrResultNotReady = errors.New("fitting: result not ready")
)

// Failure reasons recorded on the job. The two are distinct so an operator
// can tell a stuck provider from a broken asset download.
const (
	timeoutDetail   = "generation timed out"
	retrievalDetail = "result retrieval failed"
)
