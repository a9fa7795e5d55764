package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"videoproc/internal/adapters/jobstore/memory"
	"videoproc/internal/assets"
	"videoproc/internal/events"
	"videoproc/internal/jobs"
	"videoproc/internal/models"
	"videoproc/internal/pkg/logger"
	"videoproc/internal/tempstore"
	"videoproc/internal/timeline"
	"videoproc/internal/worker/processor"
	"videoproc/internal/worker/renderer"
)

type options struct {
	input    string
	output   string
	tempDir  string
	ffmpeg   string
	ffprobe  string
	preset   string
	crf      int
	timeout  time.Duration
	keepTemp bool
	logLevel string
}

func newRootCommand() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:           "render --input timeline.json --output out.mp4",
		Short:         "Render a timeline JSON file to MP4",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), opts, cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "input", "i", "", "Timeline JSON file ({timeline, clips})")
	flags.StringVarP(&opts.output, "output", "o", "", "Destination MP4 path")
	flags.StringVar(&opts.tempDir, "temp-dir", "", "Working directory for downloaded assets (default: system temp)")
	flags.StringVar(&opts.ffmpeg, "ffmpeg", "ffmpeg", "ffmpeg binary")
	flags.StringVar(&opts.ffprobe, "ffprobe", "", "ffprobe binary used to verify the output (skipped when empty)")
	flags.StringVar(&opts.preset, "preset", renderer.DefaultConfig().Preset, "x264 preset")
	flags.IntVar(&opts.crf, "crf", renderer.DefaultConfig().CRF, "x264 constant rate factor")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Abort the render after this long (0 disables)")
	flags.BoolVar(&opts.keepTemp, "keep-temp", false, "Keep the working directory after rendering")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func readRequest(path string) (timeline.Request, error) {
	var req timeline.Request
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read input: %w", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// runRender drives the same processor the API workers use, against an
// in-memory registry, and copies the result to opts.output.
func runRender(ctx context.Context, opts options, out io.Writer) error {
	req, err := readRequest(opts.input)
	if err != nil {
		return err
	}
	out = &syncWriter{w: out}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	log := logger.New(logger.Config{
		Level:       opts.logLevel,
		Format:      "text",
		Output:      out,
		ServiceName: "render-cli",
	})

	tempRoot := opts.tempDir
	if tempRoot == "" {
		tempRoot = filepath.Join(os.TempDir(), "videoproc-cli")
	}
	temp, err := tempstore.New(tempRoot)
	if err != nil {
		return err
	}

	var probe renderer.Prober
	if opts.ffprobe != "" {
		probe = renderer.NewFFprobe(opts.ffprobe)
	}

	bus := events.NewBus()
	registry := jobs.NewRegistry(memory.New(), bus, log)
	proc := processor.New(processor.Deps{
		Registry: registry,
		Fetcher:  assets.NewFetcher(temp, assets.Config{Timeout: 2 * time.Minute}, log),
		Renderer: renderer.NewExecutor(
			renderer.NewFFmpeg(opts.ffmpeg),
			probe,
			temp,
			renderer.Config{Preset: opts.preset, CRF: opts.crf},
			log,
		),
		Temp: temp,
		Log:  log,
	})

	job, err := registry.Create(ctx, req)
	if err != nil {
		return err
	}
	if !opts.keepTemp {
		defer proc.Cleanup().CleanupJob(job.ID)
	}

	ch := bus.Subscribe(job.ID)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printProgress(out, ch)
	}()

	started := time.Now()
	procErr := proc.ProcessJob(ctx, job.ID)
	bus.Unsubscribe(job.ID, ch)
	<-printed

	final, err := registry.Get(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		return err
	}
	if final.Status != models.StatusDone {
		if final.Error != "" {
			return fmt.Errorf("render failed: %s", final.Error)
		}
		if procErr != nil {
			return procErr
		}
		return fmt.Errorf("render ended in state %s", final.Status)
	}

	if err := copyFile(final.OutputPath, opts.output); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s in %s\n", opts.output, time.Since(started).Round(time.Millisecond))
	return nil
}

// syncWriter serializes writes from the logger and the progress printer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// printProgress writes one line per distinct progress value.
func printProgress(w io.Writer, ch <-chan events.Event) {
	last := -1
	for ev := range ch {
		if ev.Progress == last && !ev.Status.Terminal() {
			continue
		}
		last = ev.Progress
		fmt.Fprintf(w, "[%3d%%] %s\n", ev.Progress, ev.Status)
	}
}

// copyFile writes src to dst through a temporary sibling so a failed copy
// never leaves a truncated dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open render output: %w", err)
	}
	defer in.Close()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".render-*.mp4")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("copy output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("move output into place: %w", err)
	}
	return nil
}
