package filtergraph

import (
	"fmt"
	"strings"
)

// Stage is one step of the composition graph. The set of stages is
// closed: BaseStage, BackgroundOverlayStage, MediaOverlayStage and
// TextOverlayStage.
type Stage interface {
	// Output is the label this stage produces.
	Output() string
	write(b *strings.Builder)
	setOutput(label string)
}

// BaseStage normalizes the synthesized colour canvas (input 0).
type BaseStage struct {
	Input int
	Color string
	Out   string
}

func (s *BaseStage) Output() string         { return s.Out }
func (s *BaseStage) setOutput(label string) { s.Out = label }

func (s *BaseStage) write(b *strings.Builder) {
	fmt.Fprintf(b, "[%d:v]format=yuv420p,setsar=1[%s]", s.Input, s.Out)
}

// BackgroundOverlayStage stretches the background snapshot over the
// whole canvas for the whole duration.
type BackgroundOverlayStage struct {
	Input    int
	Width    int
	Height   int
	Duration float64
	In       string
	Out      string
}

func (s *BackgroundOverlayStage) Output() string         { return s.Out }
func (s *BackgroundOverlayStage) setOutput(label string) { s.Out = label }

func (s *BackgroundOverlayStage) write(b *strings.Builder) {
	src := s.Out + "src"
	fmt.Fprintf(b, "[%d:v]scale=%d:%d,setsar=1,trim=duration=%s,setpts=PTS-STARTPTS[%s];",
		s.Input, s.Width, s.Height, num(s.Duration), src)
	fmt.Fprintf(b, "[%s][%s]overlay=0:0:eof_action=pass[%s]", s.In, src, s.Out)
}

// MediaOverlayStage places one video or image clip inside its box and
// gates it to its visibility window.
type MediaOverlayStage struct {
	ClipID string
	Input  int
	Image  bool

	X, Y          int
	Width, Height int

	// Start and End are on the global clock; Visible is false when the
	// clip falls entirely outside the timeline.
	Start   float64
	End     float64
	Visible bool
	// Trim is the length kept from the source.
	Trim float64

	In  string
	Out string
}

func (s *MediaOverlayStage) Output() string         { return s.Out }
func (s *MediaOverlayStage) setOutput(label string) { s.Out = label }

func (s *MediaOverlayStage) write(b *strings.Builder) {
	src := s.Out + "src"
	fmt.Fprintf(b,
		"[%d:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1,trim=duration=%s,setpts=PTS-STARTPTS+%s/TB[%s];",
		s.Input, s.Width, s.Height, s.Width, s.Height, num(s.Trim), num(s.Start), src)
	fmt.Fprintf(b, "[%s][%s]overlay=%d:%d:enable='%s':eof_action=pass[%s]",
		s.In, src, s.X, s.Y, enableExpr(s.Visible, s.Start, s.End), s.Out)
}

// TextOverlayStage draws one text clip.
type TextOverlayStage struct {
	ClipID string
	Text   string

	X, Y     int
	FontSize int
	Color    string
	// Font is a fontconfig family name; empty uses the default font.
	Font string
	// BoxColor enables a background box when set.
	BoxColor string

	Start   float64
	End     float64
	Visible bool

	In  string
	Out string
}

func (s *TextOverlayStage) Output() string         { return s.Out }
func (s *TextOverlayStage) setOutput(label string) { s.Out = label }

func (s *TextOverlayStage) write(b *strings.Builder) {
	fmt.Fprintf(b, "[%s]drawtext=text=%s:x=%d:y=%d:fontsize=%d:fontcolor=%s",
		s.In, EscapeText(s.Text), s.X, s.Y, s.FontSize, s.Color)
	if s.Font != "" {
		fmt.Fprintf(b, ":font=%s", EscapeValue(s.Font))
	}
	if s.BoxColor != "" {
		fmt.Fprintf(b, ":box=1:boxcolor=%s:boxborderw=8", s.BoxColor)
	}
	fmt.Fprintf(b, ":enable='%s'[%s]", enableExpr(s.Visible, s.Start, s.End), s.Out)
}

func enableExpr(visible bool, start, end float64) string {
	if !visible {
		return "0"
	}
	return fmt.Sprintf("between(t,%s,%s)", num(start), num(end))
}
