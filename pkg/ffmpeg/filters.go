package ffmpeg

import (
	"fmt"
	"strconv"
)

// SetPTSFilter scales video presentation timestamps by 1/factor.
type SetPTSFilter struct {
	Factor float64
}

// String returns the ffmpeg filter string.
func (s SetPTSFilter) String() string {
	return fmt.Sprintf("setpts=%s*PTS", formatFloat(1/s.Factor))
}

// ATempoFilter changes audio tempo by factor without changing pitch.
// ffmpeg accepts 0.5-2.0 per atempo instance (wider on recent builds).
type ATempoFilter struct {
	Factor float64
}

// String returns the ffmpeg filter string.
func (a ATempoFilter) String() string {
	return "atempo=" + formatFloat(a.Factor)
}

// Speed adds the matching video and audio filters for playback at factor × speed.
func Speed(factor float64) Option {
	return OptionFunc(func(cmd *Command) {
		Filter(SetPTSFilter{Factor: factor}.String()).Apply(cmd)
		AudioFilter(ATempoFilter{Factor: factor}.String()).Apply(cmd)
	})
}

// EvenDimensions ensures output dimensions are divisible by 2 (required for h264).
func EvenDimensions() Option {
	return Filter("scale=trunc(iw/2)*2:trunc(ih/2)*2")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
