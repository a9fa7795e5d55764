package renderer

import (
	"context"
	"encoding/json"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"videoproc/internal/pkg/errors"
)

// ProbeResult is the subset of ffprobe output used to verify renders.
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

type ProbeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type ProbeFormat struct {
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// VideoStreams returns the video streams in the container.
func (r ProbeResult) VideoStreams() []ProbeStream {
	var out []ProbeStream
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			out = append(out, s)
		}
	}
	return out
}

// DurationSeconds returns the container duration, or 0 when unavailable.
func (r ProbeResult) DurationSeconds() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.Format.Duration), 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return v
}

// Prober inspects a finished output file.
type Prober interface {
	Probe(ctx context.Context, path string) (ProbeResult, error)
}

type FFprobe struct {
	binary string
}

func NewFFprobe(binary string) *FFprobe {
	return &FFprobe{binary: strings.TrimSpace(binary)}
}

func (p *FFprobe) Probe(ctx context.Context, path string) (ProbeResult, error) {
	cmd := commandContext(ctx, p.binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		detail := ""
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return ProbeResult{}, errors.WrapWithCode(err, errors.CodeEngine, "ffprobe.probe", "ffprobe failed: "+detail)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return ProbeResult{}, errors.WrapWithCode(err, errors.CodeEngine, "ffprobe.probe", "parse ffprobe output")
	}
	return result, nil
}

var _ Prober = (*FFprobe)(nil)
