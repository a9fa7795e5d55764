package timeline

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoproc/internal/pkg/errors"
)

func validTimeline() *Timeline {
	return &Timeline{Duration: 5, FPS: 24, Width: 640, Height: 360}
}

func TestDecodeRequest(t *testing.T) {
	body := `{
		"timeline": {"duration": 5, "fps": 24, "width": 640, "height": 360, "backgroundColor": "black"},
		"clips": [
			{"id": "v1", "type": "video", "start": 0, "duration": 3, "src": "https://cdn.example.com/a.mp4",
			 "position": {"x": 10, "y": 20}, "size": {"width": 50, "height": 25}},
			{"id": "t1", "type": "text", "start": 1, "duration": 2, "content": "hello",
			 "position": {"x": 5, "y": 5}, "style": {"fontSize": 32, "fontFamily": "Inter", "color": "#ffffff"}}
		]
	}`

	var req Request
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	require.NoError(t, req.Validate())

	assert.Equal(t, "black", req.Timeline.Background())
	require.Len(t, req.MediaClips(), 1)
	assert.Equal(t, Size{Width: 50, Height: 25}, req.MediaClips()[0].Size)
	require.True(t, req.Clips[1].IsText())
	assert.Equal(t, 32.0, req.Clips[1].Style.FontSize)
}

func TestBackgroundDefaultsToWhite(t *testing.T) {
	assert.Equal(t, "white", Timeline{}.Background())
	assert.Equal(t, "white", Timeline{BackgroundColor: "  "}.Background())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"missing timeline", Request{Clips: []Clip{}}, ""},
		{"missing clips", Request{Timeline: validTimeline()}, ""},
		{"zero duration", Request{Timeline: &Timeline{FPS: 24, Width: 640, Height: 360}, Clips: []Clip{}}, "timeline.duration"},
		{"nan duration", Request{Timeline: &Timeline{Duration: math.NaN(), FPS: 24, Width: 640, Height: 360}, Clips: []Clip{}}, "timeline.duration"},
		{"zero fps", Request{Timeline: &Timeline{Duration: 5, Width: 640, Height: 360}, Clips: []Clip{}}, "timeline.fps"},
		{"odd width", Request{Timeline: &Timeline{Duration: 5, FPS: 24, Width: 641, Height: 360}, Clips: []Clip{}}, "timeline.width"},
		{"media without src", Request{Timeline: validTimeline(), Clips: []Clip{{Type: KindImage, Duration: 1}}}, "clips.src"},
		{"negative start", Request{Timeline: validTimeline(), Clips: []Clip{{Type: KindText, Start: -1, Duration: 1}}}, "clips.start"},
		{"zero clip duration", Request{Timeline: validTimeline(), Clips: []Clip{{Type: KindText}}}, "clips.duration"},
		{"unknown type", Request{Timeline: validTimeline(), Clips: []Clip{{Type: "audio", Duration: 1}}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			if tt.field != "" {
				assert.Equal(t, tt.field, errors.GetFields(err)["field"])
			}
		})
	}

	t.Run("empty clip list is valid", func(t *testing.T) {
		assert.NoError(t, Request{Timeline: validTimeline(), Clips: []Clip{}}.Validate())
	})
}
