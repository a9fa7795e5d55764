// Package processor runs one render job end to end: fetch assets,
// compile the filter graph, encode, publish, and record the outcome.
package processor

import (
	"context"
	"time"

	"videoproc/internal/jobs"
	"videoproc/internal/models"
	"videoproc/internal/pkg/errors"
	"videoproc/internal/pkg/logger"
	"videoproc/internal/ports"
	"videoproc/internal/tempstore"
	"videoproc/internal/worker/renderer"
)

type Deps struct {
	Registry *jobs.Registry
	Fetcher  AssetFetcher
	Renderer PlanRenderer
	Temp     *tempstore.Manager
	// SP publishes finished renders; nil disables publishing.
	SP  ports.StorageProvider
	Log *logger.Logger
}

type Processor struct {
	registry *jobs.Registry
	log      *logger.Logger

	inputHandler    *InputHandler
	rendererAdapter *RendererAdapter
	outputHandler   *OutputHandler
	cleanup         *Cleanup
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	return &Processor{
		registry:        d.Registry,
		log:             log,
		inputHandler:    NewInputHandler(d.Fetcher),
		rendererAdapter: NewRendererAdapter(d.Renderer),
		outputHandler:   NewOutputHandler(d.SP, log),
		cleanup:         NewCleanup(d.Temp, log),
	}
}

// Cleanup exposes temp-dir removal to the API and the reaper.
func (p *Processor) Cleanup() *Cleanup { return p.cleanup }

// ProcessJob runs jobID if it is still queued. Jobs that were deleted or
// already picked up are skipped without error.
func (p *Processor) ProcessJob(ctx context.Context, jobID string) error {
	log := p.log.FromContext(ctx).WithJobID(jobID)
	started := time.Now()

	// 1. Load the job
	job, err := p.registry.Get(ctx, jobID)
	if errors.IsNotFound(err) {
		log.Info("job no longer exists, skipping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "processor.load", "failed to load job")
	}
	if job.Status != models.StatusQueued {
		log.Info("job not queued, skipping", "status", string(job.Status))
		return nil
	}

	// 2. Mark as processing
	if _, err := p.registry.Start(ctx, jobID); err != nil {
		if errors.IsCode(err, errors.CodeConflict) || errors.IsNotFound(err) {
			log.Info("job claimed elsewhere, skipping")
			return nil
		}
		return p.failJob(ctx, jobID, errors.Wrap(err, "processor.start", "failed to mark job as processing"))
	}

	req, err := p.registry.Request(ctx, jobID)
	if err != nil {
		return p.failJob(ctx, jobID, errors.Wrap(err, "processor.request", "failed to load job request"))
	}

	progress := func(pct int) {
		if err := p.registry.Progress(ctx, jobID, pct); err != nil {
			log.Debug("progress update dropped", "error", err.Error())
		}
	}
	progress(renderer.DownloadBase)

	// 3. Materialize inputs
	inputs, err := p.inputHandler.Materialize(ctx, jobID, req, progress)
	if err != nil {
		return p.failJob(ctx, jobID, errors.Wrap(err, "processor.inputs", "failed to materialize inputs"))
	}
	log.Debug("inputs materialized", "assets", len(inputs.Clips), "background", inputs.Background != "")

	// 4 + 5. Compile and render
	output, err := p.rendererAdapter.Render(ctx, RenderRequest{
		JobID:    jobID,
		Timeline: *req.Timeline,
		Inputs:   inputs,
		Progress: progress,
	})
	if err != nil {
		return p.failJob(ctx, jobID, errors.Wrap(err, "processor.render", "render failed"))
	}

	// 6. Publish to the output store
	key := p.outputHandler.Publish(ctx, jobID, output)

	// 7. Mark as done
	if err := p.registry.Complete(ctx, jobID, output, key); err != nil {
		return p.failJob(ctx, jobID, errors.Wrap(err, "processor.complete", "failed to complete job"))
	}

	log.Info("job done", "output", output, "output_key", key, "duration_ms", time.Since(started).Milliseconds())
	return nil
}

func (p *Processor) failJob(ctx context.Context, jobID string, cause error) error {
	log := p.log.FromContext(ctx).WithJobID(jobID)

	var appErr *errors.Error
	if errors.As(cause, &appErr) {
		log.Error("job failed",
			"code", string(appErr.Code),
			"op", appErr.Op,
			"error", cause.Error(),
		)
	} else {
		log.Error("job failed", "error", cause.Error())
	}

	p.cleanup.CleanupJob(jobID)

	// the job context may already be canceled or timed out
	if err := p.registry.Fail(context.WithoutCancel(ctx), jobID, failureMessage(cause)); err != nil && !errors.IsNotFound(err) {
		log.Warn("failed to record job failure", "error", err.Error())
	}
	return cause
}

// failureMessage is the innermost cause text, which carries the ffmpeg
// stderr tail or the download error.
func failureMessage(err error) string {
	var appErr *errors.Error
	for errors.As(err, &appErr) {
		if appErr.Err == nil {
			return appErr.Message
		}
		var inner *errors.Error
		if !errors.As(appErr.Err, &inner) {
			return appErr.Message + ": " + appErr.Err.Error()
		}
		err = appErr.Err
	}
	return err.Error()
}
