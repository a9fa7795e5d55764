// Package filtergraph compiles a timeline into a single FFmpeg
// -filter_complex plan. Compilation produces typed stage descriptors;
// text is produced only by Plan.Serialize.
package filtergraph

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"videoproc/internal/pkg/errors"
	"videoproc/internal/timeline"
)

const (
	// OutputLabel names the final stage output.
	OutputLabel = "out"

	DefaultFontSize  = 48
	DefaultTextColor = "white"
)

// InputKind tells the executor how to open an input.
type InputKind int

const (
	// InputColor is the synthesized lavfi colour canvas.
	InputColor InputKind = iota
	// InputImage is a still image looped for the whole render.
	InputImage
	InputVideo
)

// Input is one ffmpeg -i source, in index order.
type Input struct {
	Kind InputKind
	// Path is the local file, or the lavfi source description for InputColor.
	Path string
}

// ResolvedClip pairs a clip with its local file. Text clips have no path.
type ResolvedClip struct {
	Clip timeline.Clip
	Path string
}

// Plan is a compiled render.
type Plan struct {
	Width    int
	Height   int
	FPS      int
	Duration float64

	Inputs []Input
	Stages []Stage
	// Output is the label of the last stage.
	Output string
}

// Serialize renders the -filter_complex argument.
func (p *Plan) Serialize() string {
	var b strings.Builder
	for i, s := range p.Stages {
		if i > 0 {
			b.WriteByte(';')
		}
		s.write(&b)
	}
	return b.String()
}

type options struct {
	background string
}

type Option func(*options)

// WithBackground overlays the image at path over the colour canvas.
func WithBackground(path string) Option {
	return func(o *options) { o.background = path }
}

// Compile builds the plan: colour canvas, optional background, media
// clips in the given order, then text clips in the given order.
func Compile(tl timeline.Timeline, clips []ResolvedClip, opts ...Option) (*Plan, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if tl.Width <= 0 || tl.Height <= 0 || tl.FPS <= 0 || !(tl.Duration > 0) || math.IsInf(tl.Duration, 0) {
		return nil, errors.Validation("timeline dimensions, fps and duration must be positive")
	}

	p := &Plan{
		Width:    tl.Width,
		Height:   tl.Height,
		FPS:      tl.FPS,
		Duration: tl.Duration,
	}

	color := SafeColor(tl.Background(), timeline.DefaultBackgroundColor)
	p.Inputs = append(p.Inputs, Input{
		Kind: InputColor,
		Path: fmt.Sprintf("color=c=%s:s=%dx%d:r=%d:d=%s", color, tl.Width, tl.Height, tl.FPS, num(tl.Duration)),
	})
	p.push(&BaseStage{Input: 0, Color: color, Out: "base"})

	if o.background != "" {
		p.Inputs = append(p.Inputs, Input{Kind: InputImage, Path: o.background})
		p.push(&BackgroundOverlayStage{
			Input:    len(p.Inputs) - 1,
			Width:    tl.Width,
			Height:   tl.Height,
			Duration: tl.Duration,
			In:       p.Output,
			Out:      "bg",
		})
	}

	for i, rc := range clips {
		c := rc.Clip
		if !c.IsMedia() {
			continue
		}
		if rc.Path == "" {
			return nil, errors.Newf(errors.CodeInternal, "media clip %q has no local file", c.ID).WithField("index", i)
		}

		kind := InputVideo
		if c.Type == timeline.KindImage {
			kind = InputImage
		}
		p.Inputs = append(p.Inputs, Input{Kind: kind, Path: rc.Path})

		start, end, visible := window(c, tl.Duration)
		trim := end - start
		if !visible {
			trim = 1 / float64(tl.FPS)
		}
		p.push(&MediaOverlayStage{
			ClipID:  c.ID,
			Input:   len(p.Inputs) - 1,
			Image:   kind == InputImage,
			X:       pixels(c.Position.X, tl.Width, 0),
			Y:       pixels(c.Position.Y, tl.Height, 0),
			Width:   pixels(c.Size.Width, tl.Width, 1),
			Height:  pixels(c.Size.Height, tl.Height, 1),
			Start:   start,
			End:     end,
			Visible: visible,
			Trim:    trim,
			In:      p.Output,
			Out:     fmt.Sprintf("m%d", i),
		})
	}

	for i, rc := range clips {
		c := rc.Clip
		if !c.IsText() {
			continue
		}
		style := timeline.TextStyle{}
		if c.Style != nil {
			style = *c.Style
		}

		start, end, visible := window(c, tl.Duration)
		p.push(&TextOverlayStage{
			ClipID:   c.ID,
			Text:     c.Content,
			X:        pixels(c.Position.X, tl.Width, 0),
			Y:        pixels(c.Position.Y, tl.Height, 0),
			FontSize: fontSize(style.FontSize, tl.Height),
			Color:    SafeColor(style.Color, DefaultTextColor),
			Font:     strings.TrimSpace(style.FontFamily),
			BoxColor: boxColor(style.BackgroundColor),
			Start:    start,
			End:      end,
			Visible:  visible,
			In:       p.Output,
			Out:      fmt.Sprintf("t%d", i),
		})
	}

	last := p.Stages[len(p.Stages)-1]
	last.setOutput(OutputLabel)
	p.Output = OutputLabel
	return p, nil
}

func (p *Plan) push(s Stage) {
	p.Stages = append(p.Stages, s)
	p.Output = s.Output()
}

// window returns the clip's gate on the global clock. Non-finite start
// and duration count as 0.
func window(c timeline.Clip, total float64) (start, end float64, visible bool) {
	start = finite(c.Start)
	dur := finite(c.Duration)
	if start < 0 {
		start = 0
	}
	if dur < 0 {
		dur = 0
	}
	end = math.Min(start+dur, total)
	return start, end, end > start
}

// pixels converts a percentage of dim to whole pixels. The percentage is
// clamped to [0, 100]; NaN and infinities count as 0.
func pixels(pct float64, dim int, floor int) int {
	pct = clampPercent(pct)
	px := int(math.Round(pct / 100 * float64(dim)))
	if px < floor {
		px = floor
	}
	return px
}

func clampPercent(v float64) float64 {
	v = finite(v)
	return math.Max(0, math.Min(100, v))
}

func fontSize(v float64, height int) int {
	v = finite(v)
	if v <= 0 {
		return DefaultFontSize
	}
	size := int(math.Round(v))
	if size < 1 {
		size = 1
	}
	if height > 0 && size > height {
		size = height
	}
	return size
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

var colorPattern = regexp.MustCompile(`^(?:[A-Za-z]{3,32}|#[0-9A-Fa-f]{6}(?:[0-9A-Fa-f]{2})?|0x[0-9A-Fa-f]{6}(?:[0-9A-Fa-f]{2})?)(?:@(?:0(?:\.[0-9]+)?|1(?:\.0+)?))?$`)

// SafeColor returns c when it is a colour name or hex value ffmpeg can
// parse without further escaping, otherwise fallback.
func SafeColor(c, fallback string) string {
	c = strings.TrimSpace(c)
	if colorPattern.MatchString(c) {
		return c
	}
	return fallback
}

func boxColor(c string) string {
	switch strings.ToLower(strings.TrimSpace(c)) {
	case "", "transparent", "none":
		return ""
	}
	return SafeColor(c, "")
}

// num formats seconds with millisecond precision and no trailing zeros.
func num(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
