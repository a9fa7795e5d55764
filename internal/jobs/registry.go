// Package jobs owns the render job state machine:
//
//	queued -> processing -> done | error
//
// Terminal states never change and progress never decreases. Every
// accepted change is persisted through a ports.JobStore and published on
// the event bus. The submitted request is released once a job is
// terminal.
package jobs

import (
	"context"
	"strings"
	"sync"
	"time"

	"videoproc/internal/events"
	"videoproc/internal/models"
	"videoproc/internal/pkg/errors"
	"videoproc/internal/pkg/logger"
	"videoproc/internal/ports"
	"videoproc/internal/timeline"
)

// MaxErrorLength caps the stored error message.
const MaxErrorLength = 2000

// InterruptedMessage is recorded on jobs found processing at startup.
const InterruptedMessage = "render interrupted by restart"

type Registry struct {
	store    ports.JobStore
	bus      *events.Bus
	log      *logger.Logger
	now      func() time.Time
	instance string

	// serializes read-modify-write cycles against the store
	mu sync.Mutex
}

type Option func(*Registry)

// WithInstance names the process that owns the renders it starts.
// Processes sharing a store need distinct, restart-stable names.
func WithInstance(id string) Option {
	return func(r *Registry) { r.instance = id }
}

func NewRegistry(store ports.JobStore, bus *events.Bus, log *logger.Logger, opts ...Option) *Registry {
	if log == nil {
		log = logger.NewDefault()
	}
	r := &Registry{
		store: store,
		bus:   bus,
		log:   log.WithComponent("registry"),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store exposes the backing store (health checks).
func (r *Registry) Store() ports.JobStore { return r.store }

// Create records a new queued job for req.
func (r *Registry) Create(ctx context.Context, req timeline.Request) (*models.RenderJob, error) {
	job := models.NewRenderJob(r.now())
	if err := r.store.Create(ctx, job, req); err != nil {
		return nil, errors.Wrap(err, "registry.create", "create job")
	}
	r.log.FromContext(ctx).WithJobID(job.ID).Info("job queued", "clips", len(req.Clips))
	r.bus.Publish(events.FromJob(job))
	return job, nil
}

func (r *Registry) Get(ctx context.Context, id string) (*models.RenderJob, error) {
	return r.store.Get(ctx, id)
}

func (r *Registry) List(ctx context.Context) ([]*models.RenderJob, error) {
	return r.store.List(ctx)
}

// Request returns what was submitted for id. It is NOT_FOUND once the job
// is terminal.
func (r *Registry) Request(ctx context.Context, id string) (timeline.Request, error) {
	return r.store.Request(ctx, id)
}

// Start moves a queued job to processing. Any other state is a conflict.
func (r *Registry) Start(ctx context.Context, id string) (*models.RenderJob, error) {
	return r.mutate(ctx, id, func(j *models.RenderJob) (bool, error) {
		if j.Status != models.StatusQueued {
			return false, errors.Conflict("job is not queued").
				WithField("id", id).
				WithField("status", string(j.Status))
		}
		now := r.now()
		j.Status = models.StatusProcessing
		j.Owner = r.instance
		j.StartedAt = &now
		return true, nil
	})
}

// Progress raises the progress of a processing job. Lower values and
// updates for jobs in other states are ignored.
func (r *Registry) Progress(ctx context.Context, id string, pct int) error {
	pct = clampPercent(pct)
	_, err := r.mutate(ctx, id, func(j *models.RenderJob) (bool, error) {
		if j.Status != models.StatusProcessing || pct <= j.Progress {
			return false, nil
		}
		j.Progress = pct
		return true, nil
	})
	return err
}

// Complete marks a processing job done.
func (r *Registry) Complete(ctx context.Context, id, outputPath, outputKey string) error {
	_, err := r.mutate(ctx, id, func(j *models.RenderJob) (bool, error) {
		if j.Status.Terminal() {
			return false, nil
		}
		now := r.now()
		j.Status = models.StatusDone
		j.Progress = 100
		j.OutputPath = outputPath
		j.OutputKey = outputKey
		j.Error = ""
		j.FinishedAt = &now
		return true, nil
	})
	return err
}

// Fail marks a non-terminal job as failed with msg.
func (r *Registry) Fail(ctx context.Context, id, msg string) error {
	msg = truncateError(msg)
	_, err := r.mutate(ctx, id, func(j *models.RenderJob) (bool, error) {
		if j.Status.Terminal() {
			return false, nil
		}
		now := r.now()
		j.Status = models.StatusError
		j.Error = msg
		j.OutputPath = ""
		j.FinishedAt = &now
		return true, nil
	})
	return err
}

// Delete removes the record. Missing jobs are not an error.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "registry.delete", "delete job")
	}
	r.bus.Close(id)
	return nil
}

// Recover reconciles records left behind by this instance's previous
// process. Its renders caught mid-way are failed; renders owned by other
// instances are left alone. The ids of queued jobs are returned so the
// caller can re-enqueue them when the queue did not survive.
func (r *Registry) Recover(ctx context.Context) ([]string, error) {
	list, err := r.store.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "registry.recover", "list jobs")
	}

	var queued []string
	failed, foreign := 0, 0
	for _, j := range list {
		switch j.Status {
		case models.StatusProcessing:
			if j.Owner != "" && j.Owner != r.instance {
				foreign++
				continue
			}
			if err := r.Fail(ctx, j.ID, InterruptedMessage); err != nil {
				return nil, err
			}
			failed++
		case models.StatusQueued:
			queued = append(queued, j.ID)
		}
	}

	if failed > 0 || len(queued) > 0 || foreign > 0 {
		r.log.Info("recovered jobs", "failed", failed, "queued", len(queued), "other_instances", foreign)
	}
	return queued, nil
}

// Expired returns terminal jobs finished before cutoff.
func (r *Registry) Expired(ctx context.Context, cutoff time.Time) ([]*models.RenderJob, error) {
	list, err := r.store.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "registry.expired", "list jobs")
	}
	var out []*models.RenderJob
	for _, j := range list {
		if !j.Status.Terminal() {
			continue
		}
		finished := j.UpdatedAt
		if j.FinishedAt != nil {
			finished = *j.FinishedAt
		}
		if finished.Before(cutoff) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r *Registry) mutate(ctx context.Context, id string, fn func(*models.RenderJob) (bool, error)) (*models.RenderJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changed, err := fn(job)
	if err != nil || !changed {
		return job, err
	}

	job.UpdatedAt = r.now()
	if err := r.store.Update(ctx, job); err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		if err := r.store.DropRequest(ctx, id); err != nil {
			r.log.WithJobID(id).Warn("failed to release job request", "error", err.Error())
		}
	}
	r.bus.Publish(events.FromJob(job))
	return job, nil
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func truncateError(msg string) string {
	if len(msg) <= MaxErrorLength {
		return msg
	}
	return strings.ToValidUTF8(msg[:MaxErrorLength], "")
}
