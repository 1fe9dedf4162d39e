package domain

import "context"

// JobRepository defines persistence for job records.
//
// GetByID returns (nil, nil) when the id is unknown; callers that require the
// record to exist translate that into ErrNotFound. Delete is idempotent:
// removing an absent id succeeds.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, id string, update JobUpdate) (*Job, error)
	List(ctx context.Context, limit int) ([]Job, error)
	Delete(ctx context.Context, id string) error
}
