package fitting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time check that PostgresRepository implements Repository.
var _ Repository = (*PostgresRepository)(nil)

// Schema is the DDL for the fitting job table.
const Schema = `
CREATE TABLE IF NOT EXISTS virtual_fitting (
    fitting_id       TEXT PRIMARY KEY,
    member_id        TEXT NOT NULL,
    garment_ref      TEXT NOT NULL,
    category         TEXT NOT NULL,
    source_image_ref TEXT NOT NULL,
    result_image_ref TEXT NOT NULL DEFAULT '',
    provider_handle  TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL,
    error_detail     TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL,
    submitted_at     TIMESTAMPTZ,
    completed_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_virtual_fitting_member
    ON virtual_fitting (member_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_virtual_fitting_status
    ON virtual_fitting (status);
`

const jobColumns = `fitting_id, member_id, garment_ref, category, source_image_ref,
result_image_ref, provider_handle, status, error_detail, created_at, submitted_at, completed_at`

// PostgresRepository is a pgx-backed implementation of Repository.
// The compare-and-swap is a conditional UPDATE so that two concurrent
// reconciliations cannot both apply a terminal transition.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a job repository backed by PostgreSQL.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// NewPool initializes a pgx connection pool for the given database URL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return pool, nil
}

// Migrate creates the fitting job table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate virtual_fitting: %w", err)
	}
	return nil
}

// Insert persists a newly created job.
func (r *PostgresRepository) Insert(ctx context.Context, job *Job) error {
	query := `
INSERT INTO virtual_fitting (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.OwnerID,
		job.GarmentRef,
		job.Category,
		job.SourceImageRef,
		job.ResultImageRef,
		job.ProviderHandle,
		job.Status,
		job.ErrorDetail,
		job.CreatedAt,
		nullableTime(job.SubmittedAt),
		nullableTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// FindByID fetches a job by its identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM virtual_fitting WHERE fitting_id = $1;`
	return scanJob(r.pool.QueryRow(ctx, query, id))
}

// ListByOwner returns a page of the member's jobs, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string, page, size int) ([]*Job, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM virtual_fitting WHERE member_id = $1;`
	if err := r.pool.QueryRow(ctx, countQuery, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	query := `
SELECT ` + jobColumns + `
FROM virtual_fitting
WHERE member_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;
`
	rows, err := r.pool.Query(ctx, query, ownerID, size, page*size)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// ListByStatus returns all jobs currently in the given status.
func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM virtual_fitting WHERE status = $1;`
	rows, err := r.pool.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// CompareAndSwapStatus applies the update with a conditional UPDATE. When no
// row matches, the current record is re-read to distinguish a lost race from
// a missing job.
func (r *PostgresRepository) CompareAndSwapStatus(ctx context.Context, id string, expected Status, update Update) (*Job, bool, error) {
	if !CanTransition(expected, update.Status) {
		job, err := r.FindByID(ctx, id)
		return job, false, err
	}

	query := `
UPDATE virtual_fitting
SET status = $3,
    provider_handle  = CASE WHEN $4 = '' THEN provider_handle ELSE $4 END,
    result_image_ref = CASE WHEN $5 = '' THEN result_image_ref ELSE $5 END,
    error_detail     = CASE WHEN $6 = '' THEN error_detail ELSE $6 END,
    submitted_at     = COALESCE($7::timestamptz, submitted_at),
    completed_at     = COALESCE($8::timestamptz, completed_at)
WHERE fitting_id = $1 AND status = $2
RETURNING ` + jobColumns + `;
`
	job, err := scanJob(r.pool.QueryRow(ctx, query,
		id,
		expected,
		update.Status,
		update.ProviderHandle,
		update.ResultImageRef,
		update.ErrorDetail,
		nullableTime(update.SubmittedAt),
		nullableTime(update.CompletedAt),
	))
	if err == nil {
		return job, true, nil
	}
	if !errors.Is(err, ErrJobNotFound) {
		return nil, false, err
	}

	// Conditional update matched nothing: either the status moved under us
	// or the job does not exist.
	job, err = r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return job, false, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job                      Job
		submittedAt, completedAt *time.Time
	)
	err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.GarmentRef,
		&job.Category,
		&job.SourceImageRef,
		&job.ResultImageRef,
		&job.ProviderHandle,
		&job.Status,
		&job.ErrorDetail,
		&job.CreatedAt,
		&submittedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if submittedAt != nil {
		job.SubmittedAt = *submittedAt
	}
	if completedAt != nil {
		job.CompletedAt = *completedAt
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]*Job, error) {
	jobs := make([]*Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// nullableTime maps the zero time onto SQL NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
