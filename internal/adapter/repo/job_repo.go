package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dylan-Perrill/Sora2-Tool/internal/domain"
)

const jobColumns = `id, prompt, model, resolution, duration_seconds, status,
remote_job_id, artifact_url, error_message, remote_metadata,
reference_image_url, reference_image_name, created_at, updated_at`

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)

// Create inserts a new job record, assigning id and timestamps. Status
// defaults to pending when unset.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return fmt.Errorf("%w: job is required", domain.ErrConstraint)
	}
	if strings.TrimSpace(job.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", domain.ErrConstraint)
	}
	if job.Model == "" || job.Resolution == "" || job.DurationSeconds == 0 {
		return fmt.Errorf("%w: model, resolution and duration are required", domain.ErrConstraint)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}

	query := `
INSERT INTO jobs (id, prompt, model, resolution, duration_seconds, status,
                  remote_job_id, artifact_url, error_message, remote_metadata,
                  reference_image_url, reference_image_name)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING created_at, updated_at;
`
	row := r.pool.QueryRow(ctx, query,
		job.ID,
		job.Prompt,
		job.Model,
		job.Resolution,
		job.DurationSeconds,
		job.Status,
		job.RemoteJobID,
		job.ArtifactURL,
		job.ErrorMessage,
		nullableBytes(job.RemoteMetadata),
		job.ReferenceImageURL,
		job.ReferenceImageName,
	)
	if err := row.Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID fetches a job by its identifier. Returns (nil, nil) when absent.
func (r *JobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// Update merges the non-nil fields of the update into the record and bumps
// updated_at. Returns domain.ErrNotFound when the id is unknown.
func (r *JobRepositoryPG) Update(ctx context.Context, id string, update domain.JobUpdate) (*domain.Job, error) {
	query := `
UPDATE jobs
SET status = COALESCE($2, status),
    remote_job_id = COALESCE($3, remote_job_id),
    artifact_url = COALESCE($4, artifact_url),
    error_message = COALESCE($5, error_message),
    remote_metadata = COALESCE($6, remote_metadata),
    updated_at = NOW()
WHERE id = $1
RETURNING ` + jobColumns + `;`

	var status *string
	if update.Status != nil {
		s := string(*update.Status)
		status = &s
	}
	job, err := scanJob(r.pool.QueryRow(ctx, query,
		id,
		status,
		update.RemoteJobID,
		update.ArtifactURL,
		update.ErrorMessage,
		nullableBytes(update.RemoteMetadata),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("update job: %w", err)
	}
	return job, nil
}

// List returns up to limit jobs, newest first.
func (r *JobRepositoryPG) List(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC LIMIT $1;`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes a job record. Deleting an absent id is not an error.
func (r *JobRepositoryPG) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1;`, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.Prompt,
		&job.Model,
		&job.Resolution,
		&job.DurationSeconds,
		&job.Status,
		&job.RemoteJobID,
		&job.ArtifactURL,
		&job.ErrorMessage,
		&job.RemoteMetadata,
		&job.ReferenceImageURL,
		&job.ReferenceImageName,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
