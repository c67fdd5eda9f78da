package fitting

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Reconciler periodically drives the status-refresh path for PROCESSING jobs
// so that completions and timeouts are recorded even when no client is
// polling. It is an operational convenience on top of the poll-driven core:
// it reuses the same coordinator and compare-and-swap path, so it can never
// disagree with a concurrent client poll.
type Reconciler struct {
	service  *Service
	repo     Repository
	interval time.Duration
	logger   *slog.Logger
}

// NewReconciler creates a reconciler sweeping at the given interval.
func NewReconciler(service *Service, repo Repository, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		service:  service,
		repo:     repo,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps until the context is cancelled. Intended to be started as a
// goroutine from the server entrypoint.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("reconciler started",
		slog.Duration("interval", r.interval),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep refreshes every PROCESSING job once.
func (r *Reconciler) sweep(ctx context.Context) {
	jobs, err := r.repo.ListByStatus(ctx, StatusProcessing)
	if err != nil {
		r.logger.Error("reconciler list failed",
			slog.String("error", err.Error()),
		)
		return
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		updated, err := r.service.refreshProcessing(ctx, job)
		if err != nil {
			// Transient provider trouble; the next sweep retries.
			if errors.Is(err, ErrRetryable) {
				continue
			}
			r.logger.Error("reconcile failed",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if updated.Status.IsTerminal() {
			r.logger.Info("reconciled job to terminal state",
				slog.String("job_id", job.ID),
				slog.String("status", string(updated.Status)),
			)
		}
	}
}
