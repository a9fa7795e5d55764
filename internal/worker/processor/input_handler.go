package processor

import (
	"context"

	"videoproc/internal/filtergraph"
	"videoproc/internal/pkg/errors"
	"videoproc/internal/timeline"
	"videoproc/internal/worker/renderer"
)

// AssetFetcher materializes clip sources in the job directory.
type AssetFetcher interface {
	Fetch(ctx context.Context, jobID, src string) (string, error)
	SaveBackground(jobID, payload string) (string, error)
}

type InputHandler struct {
	fetcher AssetFetcher
}

func NewInputHandler(fetcher AssetFetcher) *InputHandler {
	return &InputHandler{fetcher: fetcher}
}

// Inputs are the local files of one render.
type Inputs struct {
	Background string
	Clips      []filtergraph.ResolvedClip
}

// Materialize writes the background and every media clip to disk, one
// after the other, reporting download progress. The first failure aborts.
func (ih *InputHandler) Materialize(ctx context.Context, jobID string, req timeline.Request, progress func(int)) (Inputs, error) {
	if req.Timeline == nil {
		return Inputs{}, errors.Validation("Missing timeline or clips")
	}

	var in Inputs
	if req.Timeline.HasBackgroundImage() {
		p, err := ih.fetcher.SaveBackground(jobID, req.Timeline.BackgroundImage)
		if err != nil {
			return Inputs{}, err
		}
		in.Background = p
	}

	total := len(req.MediaClips())
	done := 0
	in.Clips = make([]filtergraph.ResolvedClip, 0, len(req.Clips))
	for _, c := range req.Clips {
		if !c.IsMedia() {
			in.Clips = append(in.Clips, filtergraph.ResolvedClip{Clip: c})
			continue
		}
		if err := ctx.Err(); err != nil {
			return Inputs{}, err
		}

		p, err := ih.fetcher.Fetch(ctx, jobID, c.Src)
		if err != nil {
			return Inputs{}, errors.Wrapf(err, "inputs.fetch", "clip %s", c.ID)
		}
		in.Clips = append(in.Clips, filtergraph.ResolvedClip{Clip: c, Path: p})

		done++
		if progress != nil {
			progress(renderer.DownloadPercent(done, total))
		}
	}
	return in, nil
}
