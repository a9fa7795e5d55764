package worker

import (
	"context"
	"time"

	"videoproc/internal/jobs"
	"videoproc/internal/pkg/logger"
)

// Reaper deletes finished jobs, and their temp dirs, once they are older
// than the retention period.
type Reaper struct {
	registry  *jobs.Registry
	cleanup   func(jobID string)
	retention time.Duration
	interval  time.Duration
	log       *logger.Logger
	now       func() time.Time
}

func NewReaper(registry *jobs.Registry, cleanup func(jobID string), retention, interval time.Duration, log *logger.Logger) *Reaper {
	if log == nil {
		log = logger.NewDefault()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		registry:  registry,
		cleanup:   cleanup,
		retention: retention,
		interval:  interval,
		log:       log.WithComponent("reaper"),
		now:       time.Now,
	}
}

// Run sweeps every interval until ctx is done. A zero retention disables it.
func (r *Reaper) Run(ctx context.Context) {
	if r.retention <= 0 {
		r.log.Debug("job retention disabled")
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.log.Warn("reaper sweep failed", "error", err.Error())
			}
		}
	}
}

// Sweep removes expired jobs once and returns how many were removed.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	expired, err := r.registry.Expired(ctx, r.now().Add(-r.retention))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, j := range expired {
		if r.cleanup != nil {
			r.cleanup(j.ID)
		}
		if err := r.registry.Delete(ctx, j.ID); err != nil {
			r.log.WithJobID(j.ID).Warn("failed to delete expired job", "error", err.Error())
			continue
		}
		removed++
	}
	if removed > 0 {
		r.log.Info("expired jobs removed", "count", removed)
	}
	return removed, nil
}
