package ffmpeg

import "time"

// AudioExtractCommand builds an mp3 extraction of input's audio track.
func AudioExtractCommand(input, output string, kbps int) *Command {
	return NewCommand(input, output, PresetMP3(kbps)...)
}

// ClipCommand builds a stream-copy cut of input between start and end.
func ClipCommand(input, output string, start, end time.Duration) *Command {
	return NewCommand(input, output, SeekTo(start, end), CopyAll, ExtraArgs("-avoid_negative_ts", "make_zero"))
}

// TargetBitrateCommand builds an h264/aac re-encode at a fixed bitrate.
func TargetBitrateCommand(input, output string, videoKbps, audioKbps int) *Command {
	opts := PresetTargetBitrate(videoKbps, audioKbps)
	opts = append(opts, EvenDimensions())
	return NewCommand(input, output, opts...)
}

// SpeedCommand builds a re-encode played back at factor × speed.
func SpeedCommand(input, output string, factor float64) *Command {
	return NewCommand(input, output, Flatten(
		[]Option{Speed(factor)},
		PresetH264AAC(),
	)...)
}

// ConvertCommand builds a conversion into format. ok is false for unknown formats.
func ConvertCommand(input, output, format string) (cmd *Command, ok bool) {
	opts, ok := PresetForFormat(format)
	if !ok {
		return nil, false
	}
	return NewCommand(input, output, opts...), true
}
