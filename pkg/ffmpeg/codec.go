package ffmpeg

import "strings"

// Preset bundles combine common option combinations.

// PresetMP3 returns options for audio-only mp3 extraction at kbps.
func PresetMP3(kbps int) []Option {
	return []Option{
		NoVideo,
		AudioCodec("libmp3lame"),
		AudioBitrate(kbps),
	}
}

// PresetTargetBitrate returns h264/aac options for a fixed total bitrate split between
// video and audio, using the fast x264 preset.
func PresetTargetBitrate(videoKbps, audioKbps int) []Option {
	return []Option{
		VideoCodec("libx264"),
		Preset("fast"),
		VideoBitrate(videoKbps),
		PixelFormat("yuv420p"),
		AudioCodec("aac"),
		AudioBitrate(audioKbps),
	}
}

// PresetH264AAC returns options for a general h264/aac re-encode.
func PresetH264AAC() []Option {
	return []Option{
		VideoCodec("libx264"),
		CRF(23),
		Preset("fast"),
		PixelFormat("yuv420p"),
		AudioCodec("aac"),
		AudioBitrate(128),
	}
}

// PresetAVI returns options for mpeg4/mp3 in an AVI container.
func PresetAVI() []Option {
	return []Option{
		VideoCodec("mpeg4"),
		ExtraArgs("-q:v", "5"),
		AudioCodec("libmp3lame"),
		AudioBitrate(192),
	}
}

// PresetWebM returns options for VP9/Opus WebM.
// Uses CRF 32 with row-mt for reasonable encode speed.
func PresetWebM() []Option {
	return []Option{
		VideoCodec("libvpx-vp9"),
		CRF(32),
		ExtraArgs("-b:v", "0", "-row-mt", "1", "-deadline", "good", "-cpu-used", "4"),
		PixelFormat("yuv420p"),
		AudioCodec("libopus"),
		AudioBitrate(128),
	}
}

// PresetRemux returns options for remuxing (stream copy).
func PresetRemux() []Option {
	return []Option{
		MapAll,
		CopyAll,
	}
}

// ConvertFormats lists the container formats PresetForFormat knows, in display order.
var ConvertFormats = []string{"mp4", "avi", "mkv", "webm"}

// PresetForFormat returns the codec options for converting into format.
// ok is false for formats outside ConvertFormats.
func PresetForFormat(format string) (opts []Option, ok bool) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "mp4":
		return PresetH264AAC(), true
	case "avi":
		return PresetAVI(), true
	case "mkv":
		return PresetRemux(), true
	case "webm":
		return PresetWebM(), true
	default:
		return nil, false
	}
}

// Flatten merges multiple option slices into one.
func Flatten(groups ...[]Option) []Option {
	var all []Option
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}
