package renderer

import (
	"context"
	"os"
	"strconv"
	"time"

	"videoproc/internal/filtergraph"
	"videoproc/internal/pkg/errors"
	"videoproc/internal/pkg/logger"
	"videoproc/internal/tempstore"
)

type Config struct {
	Preset string
	CRF    int
}

func DefaultConfig() Config {
	return Config{Preset: "veryfast", CRF: 23}
}

// Executor turns a plan into an ffmpeg command and runs it.
type Executor struct {
	engine Engine
	probe  Prober
	temp   *tempstore.Manager
	cfg    Config
	log    *logger.Logger
}

// NewExecutor builds an executor. probe may be nil to skip verification.
func NewExecutor(engine Engine, probe Prober, temp *tempstore.Manager, cfg Config, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.NewDefault()
	}
	if cfg.Preset == "" {
		cfg.Preset = DefaultConfig().Preset
	}
	if cfg.CRF <= 0 {
		cfg.CRF = DefaultConfig().CRF
	}
	return &Executor{
		engine: engine,
		probe:  probe,
		temp:   temp,
		cfg:    cfg,
		log:    log.WithComponent("renderer"),
	}
}

// Args builds the full ffmpeg argument list for plan writing to output.
func (e *Executor) Args(plan *filtergraph.Plan, output string) []string {
	args := []string{"-hide_banner", "-nostats", "-y", "-progress", "pipe:1"}

	for _, in := range plan.Inputs {
		switch in.Kind {
		case filtergraph.InputColor:
			args = append(args, "-f", "lavfi", "-i", in.Path)
		case filtergraph.InputImage:
			args = append(args, "-loop", "1", "-i", in.Path)
		default:
			args = append(args, "-i", in.Path)
		}
	}

	return append(args,
		"-filter_complex", plan.Serialize(),
		"-map", "["+plan.Output+"]",
		"-an",
		"-c:v", "libx264",
		"-preset", e.cfg.Preset,
		"-crf", strconv.Itoa(e.cfg.CRF),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-r", strconv.Itoa(plan.FPS),
		"-t", strconv.FormatFloat(plan.Duration, 'f', -1, 64),
		output,
	)
}

// Render runs plan for jobID and returns the absolute output path.
// progress receives overall job percentages in the encode band. On
// failure the job directory is removed.
func (e *Executor) Render(ctx context.Context, jobID string, plan *filtergraph.Plan, progress func(int)) (string, error) {
	log := e.log.FromContext(ctx).WithJobID(jobID)

	if _, err := e.temp.Ensure(jobID); err != nil {
		return "", err
	}
	output, err := e.temp.OutputPath(jobID)
	if err != nil {
		return "", err
	}

	sampler := logger.NewProgressSampler(10)
	start := time.Now()
	log.Info("render started", "inputs", len(plan.Inputs), "stages", len(plan.Stages), "duration", plan.Duration)

	err = e.engine.Run(ctx, e.Args(plan, output), func(outTime float64) {
		pct := EncodePercent(outTime, plan.Duration)
		if sampler.ShouldLog(pct, "encode") {
			log.Info("render progress", "percent", int(pct))
		}
		if progress != nil {
			progress(OverallPercent(pct))
		}
	})
	if err == nil {
		err = e.verify(ctx, log, output)
	}
	if err != nil {
		if rmErr := e.temp.Remove(jobID); rmErr != nil {
			log.Warn("failed to remove job dir", "error", rmErr.Error())
		}
		return "", errors.Wrap(err, "renderer.render", "render failed")
	}

	log.Info("render finished", "output", output, "duration_ms", time.Since(start).Milliseconds())
	return output, nil
}

func (e *Executor) verify(ctx context.Context, log *logger.Logger, output string) error {
	st, err := os.Stat(output)
	if err != nil || st.Size() == 0 {
		return errors.New(errors.CodeEngine, "ffmpeg produced no output")
	}
	if e.probe == nil {
		return nil
	}

	res, err := e.probe.Probe(ctx, output)
	if err != nil {
		return err
	}
	streams := res.VideoStreams()
	if len(streams) != 1 {
		return errors.Newf(errors.CodeEngine, "expected 1 video stream, found %d", len(streams))
	}
	log.Debug("output verified",
		"width", streams[0].Width,
		"height", streams[0].Height,
		"codec", streams[0].CodecName,
		"duration", res.DurationSeconds(),
		"bytes", st.Size(),
	)
	return nil
}
