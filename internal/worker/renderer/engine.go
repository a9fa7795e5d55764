// Package renderer runs a compiled filter-graph plan through FFmpeg.
package renderer

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"videoproc/internal/pkg/errors"
)

var commandContext = exec.CommandContext

// Engine executes one ffmpeg invocation. onProgress receives the encoded
// output time in seconds as reported on the progress pipe.
type Engine interface {
	Run(ctx context.Context, args []string, onProgress func(outTime float64)) error
}

// FFmpeg is the process-backed Engine.
type FFmpeg struct {
	binary string
	// stderrTail is how many trailing stderr bytes are kept for errors.
	stderrTail int
}

func NewFFmpeg(binary string) *FFmpeg {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary, stderrTail: 4096}
}

func (f *FFmpeg) Binary() string { return f.binary }

// Run starts ffmpeg bound to ctx; canceling ctx kills the process.
// Progress is read from stdout, so args must include "-progress pipe:1".
func (f *FFmpeg) Run(ctx context.Context, args []string, onProgress func(outTime float64)) error {
	cmd := commandContext(ctx, f.binary, args...) //nolint:gosec
	cmd.WaitDelay = 5 * time.Second

	stderr := newTail(f.stderrTail)
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeEngine, "ffmpeg.run", "stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "ffmpeg.run", "start ffmpeg").
			WithField("binary", f.binary)
	}

	scanErr := scanProgress(stdout, onProgress)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return contextError(ctx.Err())
	}
	if waitErr != nil {
		msg := "ffmpeg failed"
		if tail := strings.TrimSpace(stderr.String()); tail != "" {
			msg += ": " + tail
		}
		return errors.WrapWithCode(waitErr, errors.CodeEngine, "ffmpeg.run", msg)
	}
	if scanErr != nil {
		return errors.WrapWithCode(scanErr, errors.CodeEngine, "ffmpeg.run", "read progress")
	}
	return nil
}

func scanProgress(r io.Reader, onProgress func(float64)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if secs, ok := ParseProgressLine(scanner.Text()); ok && onProgress != nil {
			onProgress(secs)
		}
	}
	return scanner.Err()
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.WrapWithCode(err, errors.CodeTimeout, "ffmpeg.run", "render timed out")
	}
	return errors.WrapWithCode(err, errors.CodeCanceled, "ffmpeg.run", "render canceled")
}

// tail keeps the last n bytes written to it.
type tail struct {
	mu  sync.Mutex
	n   int
	buf []byte
}

func newTail(n int) *tail { return &tail{n: n} }

func (t *tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.n; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.ToValidUTF8(string(t.buf), "")
}

var _ Engine = (*FFmpeg)(nil)
