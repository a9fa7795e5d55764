package processor

import (
	"context"

	"videoproc/internal/filtergraph"
	"videoproc/internal/timeline"
	"videoproc/internal/worker/renderer"
)

// PlanRenderer encodes a compiled plan and returns the output path.
type PlanRenderer interface {
	Render(ctx context.Context, jobID string, plan *filtergraph.Plan, progress func(int)) (string, error)
}

var _ PlanRenderer = (*renderer.Executor)(nil)

type RendererAdapter struct {
	renderer PlanRenderer
}

func NewRendererAdapter(r PlanRenderer) *RendererAdapter {
	return &RendererAdapter{renderer: r}
}

type RenderRequest struct {
	JobID    string
	Timeline timeline.Timeline
	Inputs   Inputs
	Progress func(int)
}

// Render compiles the timeline against the materialized inputs and runs it.
func (ra *RendererAdapter) Render(ctx context.Context, req RenderRequest) (string, error) {
	var opts []filtergraph.Option
	if req.Inputs.Background != "" {
		opts = append(opts, filtergraph.WithBackground(req.Inputs.Background))
	}

	plan, err := filtergraph.Compile(req.Timeline, req.Inputs.Clips, opts...)
	if err != nil {
		return "", err
	}
	if req.Progress != nil {
		req.Progress(renderer.CompiledAt)
	}

	return ra.renderer.Render(ctx, req.JobID, plan, req.Progress)
}
