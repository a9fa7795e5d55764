// Package timeline defines the declarative render request: a canvas
// description plus an ordered list of clips, with geometry expressed in
// percentages of the canvas so it is independent of output resolution.
package timeline

import (
	"math"
	"strings"

	"videoproc/internal/pkg/errors"
)

// DefaultBackgroundColor is used when a timeline does not set one.
const DefaultBackgroundColor = "white"

// Kind tags the clip variant.
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
	KindText  Kind = "text"
)

// Timeline is the canvas definition of one render.
type Timeline struct {
	Duration        float64 `json:"duration"`
	FPS             int     `json:"fps"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
	// BackgroundImage is a data URI or a bare base64 PNG payload.
	BackgroundImage string `json:"backgroundImage,omitempty"`
}

// Background returns the canvas colour, defaulting to white.
func (t Timeline) Background() string {
	if c := strings.TrimSpace(t.BackgroundColor); c != "" {
		return c
	}
	return DefaultBackgroundColor
}

// HasBackgroundImage reports whether a background snapshot was supplied.
func (t Timeline) HasBackgroundImage() bool {
	return strings.TrimSpace(t.BackgroundImage) != ""
}

// Point is a position in percent of the canvas.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a box size in percent of the canvas.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TextStyle configures a text clip.
type TextStyle struct {
	FontSize        float64 `json:"fontSize"`
	FontFamily      string  `json:"fontFamily,omitempty"`
	Color           string  `json:"color,omitempty"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
}

// Clip is one timed layer. Media clips (video, image) use Src and Size;
// text clips use Content and Style. Position applies to both.
type Clip struct {
	ID       string     `json:"id"`
	Type     Kind       `json:"type"`
	Start    float64    `json:"start"`
	Duration float64    `json:"duration"`
	Src      string     `json:"src,omitempty"`
	Position Point      `json:"position"`
	Size     Size       `json:"size"`
	Content  string     `json:"content,omitempty"`
	Style    *TextStyle `json:"style,omitempty"`
}

// IsMedia reports whether the clip references a media file.
func (c Clip) IsMedia() bool {
	return c.Type == KindVideo || c.Type == KindImage
}

// IsText reports whether the clip is a text overlay.
func (c Clip) IsText() bool {
	return c.Type == KindText
}

// Request is the body of a render submission.
type Request struct {
	Timeline *Timeline `json:"timeline"`
	Clips    []Clip    `json:"clips"`
}

// MediaClips returns the video and image clips in submission order.
func (r Request) MediaClips() []Clip {
	out := make([]Clip, 0, len(r.Clips))
	for _, c := range r.Clips {
		if c.IsMedia() {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks the request shape. Geometry values are not checked here;
// the compiler clamps them.
func (r Request) Validate() error {
	if r.Timeline == nil || r.Clips == nil {
		return errors.Validation("Missing timeline or clips")
	}

	t := r.Timeline
	switch {
	case !(t.Duration > 0) || math.IsInf(t.Duration, 0):
		return errors.ValidationField("timeline.duration", "timeline.duration must be a positive number")
	case t.FPS <= 0:
		return errors.ValidationField("timeline.fps", "timeline.fps must be a positive integer")
	case t.Width <= 0 || t.Height <= 0:
		return errors.ValidationField("timeline.width", "timeline width and height must be positive")
	case t.Width%2 != 0 || t.Height%2 != 0:
		return errors.ValidationField("timeline.width", "timeline width and height must be even")
	}

	for i, c := range r.Clips {
		switch c.Type {
		case KindVideo, KindImage:
			if strings.TrimSpace(c.Src) == "" {
				return errors.ValidationField("clips.src", "media clip requires src").WithField("index", i)
			}
		case KindText:
		default:
			return errors.Validationf("clip %d has unknown type %q", i, c.Type).WithField("index", i)
		}
		if c.Start < 0 {
			return errors.ValidationField("clips.start", "clip start must not be negative").WithField("index", i)
		}
		if !(c.Duration > 0) {
			return errors.ValidationField("clips.duration", "clip duration must be positive").WithField("index", i)
		}
	}
	return nil
}
