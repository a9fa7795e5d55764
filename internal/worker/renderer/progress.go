package renderer

import (
	"math"
	"strconv"
	"strings"
)

// Overall progress bands. Asset download and compilation occupy
// [0, EncodeBase); encoding maps onto [EncodeBase, 100].
const (
	DownloadBase = 5
	DownloadSpan = 25
	CompiledAt   = 35
	EncodeBase   = 35
	EncodeSpan   = 65
)

// ParseProgressLine extracts the encoded output time, in seconds, from one
// "-progress" key=value line. out_time_ms carries microseconds as well.
func ParseProgressLine(line string) (float64, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return 0, false
	}
	switch key {
	case "out_time_us", "out_time_ms":
		v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || v < 0 {
			return 0, false
		}
		return float64(v) / 1e6, true
	}
	return 0, false
}

// EncodePercent converts output time to 0-100 of the target duration.
func EncodePercent(outTime, duration float64) float64 {
	if !(duration > 0) {
		return 0
	}
	return math.Max(0, math.Min(100, outTime/duration*100))
}

// OverallPercent maps an encode percentage onto the job progress scale.
func OverallPercent(encodePct float64) int {
	return int(math.Round(EncodeBase + encodePct*EncodeSpan/100))
}

// DownloadPercent is the job progress after i of n assets are fetched.
func DownloadPercent(i, n int) int {
	if n <= 0 {
		return DownloadBase + DownloadSpan
	}
	return DownloadBase + DownloadSpan*i/n
}
