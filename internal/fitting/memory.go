package fitting

import (
	"context"
	"sort"
	"sync"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// It uses a map with RWMutex for thread-safe access.
// Suitable for development and testing; swap for PostgresRepository in production.
type MemoryRepository struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryRepository creates a new in-memory job repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		jobs: make(map[string]*Job),
	}
}

// Insert persists a newly created job.
// Stores a clone to avoid external mutations.
func (r *MemoryRepository) Insert(_ context.Context, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job.Clone()
	return nil
}

// FindByID retrieves a job by its ID.
// Returns a clone to prevent external mutations.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// ListByOwner returns a page of the member's jobs, newest first.
func (r *MemoryRepository) ListByOwner(_ context.Context, ownerID string, page, size int) ([]*Job, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owned := make([]*Job, 0)
	for _, job := range r.jobs {
		if job.OwnerID == ownerID {
			owned = append(owned, job.Clone())
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	total := len(owned)
	start := page * size
	if start >= total {
		return []*Job{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return owned[start:end], total, nil
}

// ListByStatus returns all jobs currently in the given status.
func (r *MemoryRepository) ListByStatus(_ context.Context, status Status) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Job, 0)
	for _, job := range r.jobs {
		if job.Status == status {
			result = append(result, job.Clone())
		}
	}
	return result, nil
}

// CompareAndSwapStatus applies the update under the write lock only if the
// current status matches expected and the transition is allowed.
func (r *MemoryRepository) CompareAndSwapStatus(_ context.Context, id string, expected Status, update Update) (*Job, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, false, ErrJobNotFound
	}
	if job.Status != expected || !CanTransition(job.Status, update.Status) {
		return job.Clone(), false, nil
	}
	update.apply(job)
	return job.Clone(), true, nil
}
