package ports

import (
	"context"

	"videoproc/internal/models"
	"videoproc/internal/timeline"
)

// JobStore persists render job records.
//
// Get and Update return a NOT_FOUND coded error for unknown ids.
// Delete is idempotent and removes the request too. Implementations
// return copies; callers may mutate what they receive without affecting
// the stored record.
//
// The submitted request is written once by Create and kept apart from
// the record, so Update never rewrites it. DropRequest releases it once
// the job no longer needs its inputs; Request then reports NOT_FOUND.
type JobStore interface {
	Create(ctx context.Context, job *models.RenderJob, req timeline.Request) error
	Get(ctx context.Context, id string) (*models.RenderJob, error)
	Update(ctx context.Context, job *models.RenderJob) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.RenderJob, error)

	Request(ctx context.Context, id string) (timeline.Request, error)
	DropRequest(ctx context.Context, id string) error

	// Kind names the backend (memory, redis, postgres, sqlite).
	Kind() string
	// Durable reports whether records survive a process restart.
	Durable() bool
	Ping(ctx context.Context) error
	Close() error
}
