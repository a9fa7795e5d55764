package filtergraph

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoproc/internal/timeline"
)

func hd() timeline.Timeline {
	return timeline.Timeline{Duration: 5, FPS: 30, Width: 1280, Height: 720}
}

func video(id string, start, dur float64) ResolvedClip {
	return ResolvedClip{
		Clip: timeline.Clip{
			ID: id, Type: timeline.KindVideo, Start: start, Duration: dur,
			Src:      "https://example.com/" + id + ".mp4",
			Position: timeline.Point{X: 10, Y: 20},
			Size:     timeline.Size{Width: 50, Height: 50},
		},
		Path: "/tmp/job/" + id + ".mp4",
	}
}

func text(id, content string, start, dur float64) ResolvedClip {
	return ResolvedClip{Clip: timeline.Clip{
		ID: id, Type: timeline.KindText, Start: start, Duration: dur, Content: content,
		Position: timeline.Point{X: 50, Y: 50},
		Style:    &timeline.TextStyle{FontSize: 32, Color: "yellow"},
	}}
}

func TestCompileZeroClips(t *testing.T) {
	p, err := Compile(hd(), nil)
	require.NoError(t, err)

	require.Len(t, p.Inputs, 1)
	assert.Equal(t, InputColor, p.Inputs[0].Kind)
	assert.Equal(t, "color=c=white:s=1280x720:r=30:d=5", p.Inputs[0].Path)
	assert.Equal(t, "[0:v]format=yuv420p,setsar=1[out]", p.Serialize())
	assert.Equal(t, OutputLabel, p.Output)
}

func TestCompileBackgroundAndVideo(t *testing.T) {
	tl := hd()
	tl.BackgroundColor = "#112233"

	p, err := Compile(tl, []ResolvedClip{video("v1", 1, 2)}, WithBackground("/tmp/job/bg.png"))
	require.NoError(t, err)

	require.Len(t, p.Inputs, 3)
	assert.Equal(t, "color=c=#112233:s=1280x720:r=30:d=5", p.Inputs[0].Path)
	assert.Equal(t, Input{Kind: InputImage, Path: "/tmp/job/bg.png"}, p.Inputs[1])
	assert.Equal(t, Input{Kind: InputVideo, Path: "/tmp/job/v1.mp4"}, p.Inputs[2])

	require.Len(t, p.Stages, 3)
	assert.IsType(t, &BaseStage{}, p.Stages[0])
	assert.IsType(t, &BackgroundOverlayStage{}, p.Stages[1])
	media := p.Stages[2].(*MediaOverlayStage)
	assert.Equal(t, 2, media.Input)
	assert.Equal(t, 128, media.X)
	assert.Equal(t, 144, media.Y)
	assert.Equal(t, 640, media.Width)
	assert.Equal(t, 360, media.Height)

	want := "[0:v]format=yuv420p,setsar=1[base];" +
		"[1:v]scale=1280:720,setsar=1,trim=duration=5,setpts=PTS-STARTPTS[bgsrc];" +
		"[base][bgsrc]overlay=0:0:eof_action=pass[bg];" +
		"[2:v]scale=640:360:force_original_aspect_ratio=increase,crop=640:360,setsar=1,trim=duration=2,setpts=PTS-STARTPTS+1/TB[outsrc];" +
		"[bg][outsrc]overlay=128:144:enable='between(t,1,3)':eof_action=pass[out]"
	assert.Equal(t, want, p.Serialize())
}

func TestCompileInputOrderSkipsText(t *testing.T) {
	img := video("i1", 0, 1)
	img.Clip.Type = timeline.KindImage
	img.Path = "/tmp/job/i1.png"

	p, err := Compile(hd(), []ResolvedClip{text("t1", "hi", 0, 1), video("v1", 0, 1), img})
	require.NoError(t, err)

	require.Len(t, p.Inputs, 3)
	assert.Equal(t, InputVideo, p.Inputs[1].Kind)
	assert.Equal(t, InputImage, p.Inputs[2].Kind)

	// media first, then text, each in submission order
	require.Len(t, p.Stages, 4)
	assert.Equal(t, "v1", p.Stages[1].(*MediaOverlayStage).ClipID)
	assert.Equal(t, 1, p.Stages[1].(*MediaOverlayStage).Input)
	assert.Equal(t, "i1", p.Stages[2].(*MediaOverlayStage).ClipID)
	assert.True(t, p.Stages[2].(*MediaOverlayStage).Image)
	assert.Equal(t, "t1", p.Stages[3].(*TextOverlayStage).ClipID)
	assert.Equal(t, "m2", p.Stages[3].(*TextOverlayStage).In)
	assert.Equal(t, OutputLabel, p.Stages[3].Output())
}

func TestCompileWindows(t *testing.T) {
	tests := []struct {
		name    string
		start   float64
		dur     float64
		enable  string
		trim    string
		visible bool
	}{
		{"inside", 1, 2, "enable='between(t,1,3)'", "trim=duration=2,", true},
		{"clipped at end", 4, 3, "enable='between(t,4,5)'", "trim=duration=1,", true},
		{"starts after end", 7, 2, "enable='0'", "trim=duration=0.033,", false},
		{"nan start", math.NaN(), 1, "enable='between(t,0,1)'", "trim=duration=1,", true},
		{"inf duration", 1, math.Inf(1), "enable='0'", "", false},
		{"fractional", 0.25, 1.5, "enable='between(t,0.25,1.75)'", "setpts=PTS-STARTPTS+0.25/TB", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(hd(), []ResolvedClip{video("v", tt.start, tt.dur)})
			require.NoError(t, err)
			stage := p.Stages[1].(*MediaOverlayStage)
			assert.Equal(t, tt.visible, stage.Visible)

			graph := p.Serialize()
			assert.Contains(t, graph, tt.enable)
			assert.Contains(t, graph, tt.trim)
		})
	}
}

func TestCompileClampsGeometry(t *testing.T) {
	c := video("v", 0, 1)
	c.Clip.Position = timeline.Point{X: math.NaN(), Y: 150}
	c.Clip.Size = timeline.Size{Width: math.Inf(1), Height: -20}

	p, err := Compile(hd(), []ResolvedClip{c})
	require.NoError(t, err)
	stage := p.Stages[1].(*MediaOverlayStage)

	assert.Equal(t, 0, stage.X)
	assert.Equal(t, 720, stage.Y)
	assert.Equal(t, 1, stage.Width)
	assert.Equal(t, 1, stage.Height)

	c.Clip.Size = timeline.Size{Width: 0.01, Height: 100}
	p, err = Compile(hd(), []ResolvedClip{c})
	require.NoError(t, err)
	stage = p.Stages[1].(*MediaOverlayStage)
	assert.Equal(t, 1, stage.Width)
	assert.Equal(t, 720, stage.Height)
}

func TestCompileText(t *testing.T) {
	c := text("t1", "a:b'c", 0, 2)
	c.Clip.Style.FontFamily = "Open Sans"
	c.Clip.Style.BackgroundColor = "black@0.5"

	p, err := Compile(hd(), []ResolvedClip{c})
	require.NoError(t, err)

	want := `[base]drawtext=text=a\\:b\\\'c:x=640:y=360:fontsize=32:fontcolor=yellow:font=Open Sans` +
		`:box=1:boxcolor=black@0.5:boxborderw=8:enable='between(t,0,2)'[out]`
	assert.Equal(t, "[0:v]format=yuv420p,setsar=1[base];"+want, p.Serialize())
}

func TestCompileTextDefaults(t *testing.T) {
	c := text("t1", "x", 0, 1)
	c.Clip.Style = nil

	p, err := Compile(hd(), []ResolvedClip{c})
	require.NoError(t, err)
	stage := p.Stages[1].(*TextOverlayStage)
	assert.Equal(t, DefaultFontSize, stage.FontSize)
	assert.Equal(t, DefaultTextColor, stage.Color)
	assert.Empty(t, stage.BoxColor)
	assert.NotContains(t, p.Serialize(), "box=1")
}

func TestCompileUnsafeColors(t *testing.T) {
	tl := hd()
	tl.BackgroundColor = "red:d=1[x];[x]nullsink"
	c := text("t1", "x", 0, 1)
	c.Clip.Style.Color = "rgba(0,0,0,1)"
	c.Clip.Style.BackgroundColor = "transparent"

	p, err := Compile(tl, []ResolvedClip{c})
	require.NoError(t, err)

	assert.Equal(t, "color=c=white:s=1280x720:r=30:d=5", p.Inputs[0].Path)
	stage := p.Stages[1].(*TextOverlayStage)
	assert.Equal(t, "white", stage.Color)
	assert.Empty(t, stage.BoxColor)
}

func TestCompileErrors(t *testing.T) {
	c := video("v1", 0, 1)
	c.Path = ""
	_, err := Compile(hd(), []ResolvedClip{c})
	assert.Error(t, err)

	bad := hd()
	bad.FPS = 0
	_, err = Compile(bad, nil)
	assert.Error(t, err)
}

func TestSafeColor(t *testing.T) {
	ok := []string{"white", "DarkSlateGray", "#ffffff", "#FFFFFF80", "0x00ff00", "red@0.5", "black@1"}
	for _, c := range ok {
		assert.Equal(t, c, SafeColor(c, "fallback"), c)
	}
	bad := []string{"", "#fff", "red;", "white:x=1", "rgb(1,2,3)", "#gggggg", "red@2", strings.Repeat("a", 40)}
	for _, c := range bad {
		assert.Equal(t, "fallback", SafeColor(c, "fallback"), c)
	}
}

func TestNum(t *testing.T) {
	assert.Equal(t, "0", num(0))
	assert.Equal(t, "5", num(5))
	assert.Equal(t, "1.5", num(1.5))
	assert.Equal(t, "0.333", num(1.0/3))
}
