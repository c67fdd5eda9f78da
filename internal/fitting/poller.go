package fitting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/HyungJun-An/LookFit/internal/provider"
)

// Poller coordinates provider status queries so that any number of concurrent
// pollers for one job produce at most one in-flight provider call, successive
// queries for the same job are spaced by a minimum interval, and the total
// number of outstanding provider queries is bounded.
//
// All coordination state is scoped to this struct; there is no package-level
// bookkeeping.
type Poller struct {
	client       provider.Client
	group        singleflight.Group
	sem          *semaphore.Weighted
	debounce     time.Duration
	queryTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.Mutex
	recent map[string]pollEntry
}

// pollEntry caches the outcome of the most recent provider query for a job.
// During the debounce window callers get the cached outcome instead of a
// fresh provider call.
type pollEntry struct {
	at     time.Time
	result provider.PollResult
	err    error
}

// PollerOption is a function that configures a Poller.
type PollerOption func(*Poller)

// WithDebounce sets the minimum interval between provider queries for the
// same job.
func WithDebounce(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.debounce = d
		}
	}
}

// WithMaxInFlight bounds the number of simultaneous provider queries across
// all jobs.
func WithMaxInFlight(n int64) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithQueryTimeout sets the network-level deadline for a single provider query.
func WithQueryTimeout(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.queryTimeout = d
		}
	}
}

// WithPollerClock overrides the clock, for tests.
func WithPollerClock(now func() time.Time) PollerOption {
	return func(p *Poller) {
		p.now = now
	}
}

// NewPoller creates a polling coordinator around the given provider client.
func NewPoller(client provider.Client, logger *slog.Logger, opts ...PollerOption) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		client:       client,
		sem:          semaphore.NewWeighted(8),
		debounce:     2 * time.Second,
		queryTimeout: 30 * time.Second,
		logger:       logger,
		now:          time.Now,
		recent:       make(map[string]pollEntry),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Query returns the provider's view of the job, coalescing concurrent callers
// onto a single provider call and serving the cached outcome inside the
// debounce window. The provider call runs on a context detached from the
// caller so an abandoned poll request still produces a result for everyone
// else waiting on it.
func (p *Poller) Query(ctx context.Context, jobID, handle string) (provider.PollResult, error) {
	if cached, ok := p.cached(jobID); ok {
		return cached.result, cached.err
	}

	v, err, _ := p.group.Do(jobID, func() (any, error) {
		// A caller that queued behind the singleflight leader re-checks the
		// cache: the leader's result may already satisfy it.
		if cached, ok := p.cached(jobID); ok {
			return cached.result, cached.err
		}

		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.queryTimeout)
		defer cancel()

		if err := p.sem.Acquire(qctx, 1); err != nil {
			return provider.PollResult{}, &provider.RetryableError{
				Err: fmt.Errorf("await provider query slot: %w", err),
			}
		}
		defer p.sem.Release(1)

		result, err := p.client.QueryStatus(qctx, handle)
		p.remember(jobID, result, err)
		if err != nil {
			p.logger.Warn("provider status query failed",
				slog.String("job_id", jobID),
				slog.Bool("retryable", provider.IsRetryable(err)),
				slog.String("error", err.Error()),
			)
		}
		return result, err
	})

	result, _ := v.(provider.PollResult)
	return result, err
}

// Forget drops the coordination state for a job. Called once the job reaches
// a terminal state so the cache does not accumulate finished jobs.
func (p *Poller) Forget(jobID string) {
	p.mu.Lock()
	delete(p.recent, jobID)
	p.mu.Unlock()
	p.group.Forget(jobID)
}

// cached returns the last outcome if it is still inside the debounce window.
func (p *Poller) cached(jobID string) (pollEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.recent[jobID]
	if !ok || p.now().Sub(e.at) >= p.debounce {
		return pollEntry{}, false
	}
	return e, true
}

// remember records the outcome of a provider query. Errors are cached too so
// that a failing provider is not hammered inside the debounce window.
func (p *Poller) remember(jobID string, result provider.PollResult, err error) {
	p.mu.Lock()
	p.recent[jobID] = pollEntry{at: p.now(), result: result, err: err}
	p.mu.Unlock()
}
