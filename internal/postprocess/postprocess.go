// Package postprocess transforms an already-fetched local file with ffmpeg, or pulls
// side assets (subtitles, thumbnails) with yt-dlp. Every operation is a single attempt.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"thirdcoast.systems/clipfit/internal/artifact"
	"thirdcoast.systems/clipfit/internal/mediaerr"
	"thirdcoast.systems/clipfit/pkg/ffmpeg"
	"thirdcoast.systems/clipfit/pkg/runner"
)

const (
	MinSpeed = 0.5
	MaxSpeed = 2.0

	bitrateSafetyFactor = 0.9

	defaultAudioKbps    = 192
	defaultShortTimeout = 3 * time.Minute
	defaultLongTimeout  = 5 * time.Minute
)

// Transcoder runs ffmpeg and ffprobe.
type Transcoder interface {
	Run(ctx context.Context, cmd *ffmpeg.Command, timeout time.Duration) (*runner.Result, error)
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// SideFetcher downloads non-media assets for a URL.
type SideFetcher interface {
	WriteSubtitles(ctx context.Context, url, outputTemplate string, langs []string, extraArgs ...string) error
	WriteThumbnail(ctx context.Context, url, outputTemplate string, extraArgs ...string) error
}

type Config struct {
	AudioKbps     int
	SubtitleLangs []string
	// ShortTimeout bounds audio extraction and trim; LongTimeout bounds re-encodes.
	ShortTimeout time.Duration
	LongTimeout  time.Duration
}

type Processor struct {
	ws   *artifact.Workspace
	tc   Transcoder
	side SideFetcher
	cfg  Config
}

func New(ws *artifact.Workspace, tc Transcoder, side SideFetcher, cfg Config) *Processor {
	if cfg.AudioKbps <= 0 {
		cfg.AudioKbps = defaultAudioKbps
	}
	if cfg.ShortTimeout <= 0 {
		cfg.ShortTimeout = defaultShortTimeout
	}
	if cfg.LongTimeout <= 0 {
		cfg.LongTimeout = defaultLongTimeout
	}
	if len(cfg.SubtitleLangs) == 0 {
		cfg.SubtitleLangs = []string{"ru", "en"}
	}
	return &Processor{ws: ws, tc: tc, side: side, cfg: cfg}
}

// ExtractAudio writes the audio track of video as mp3.
func (p *Processor) ExtractAudio(ctx context.Context, video string) (artifact.Entry, error) {
	out := p.ws.Path(p.ws.NewName(artifact.KindAudio), "mp3")
	return p.transcode(ctx, "postprocess.audio", ffmpeg.AudioExtractCommand(video, out, p.cfg.AudioKbps), p.cfg.ShortTimeout)
}

// Compress re-encodes video to fit targetMB. A file already within target is copied as-is.
func (p *Processor) Compress(ctx context.Context, video string, targetMB float64) (artifact.Entry, error) {
	const op = "postprocess.compress"
	if targetMB <= 0 {
		return artifact.Entry{}, mediaerr.Invalid(op, "target size must be positive, got %v", targetMB)
	}

	size, err := artifact.Size(video)
	if err != nil {
		return artifact.Entry{}, mediaerr.E(mediaerr.KindPostProcessFailed, op, err)
	}

	name := p.ws.NewName(artifact.KindCompressed)
	if artifact.MB(size) <= targetMB {
		out := p.ws.Path(name, extOf(video))
		if err := artifact.CopyFile(video, out); err != nil {
			_ = artifact.Remove(out)
			return artifact.Entry{}, mediaerr.E(mediaerr.KindPostProcessFailed, op, err)
		}
		slog.Info("postprocess: already within target, copied", "size", humanize.IBytes(uint64(size)), "target_mb", targetMB)
		return artifact.Entry{Path: out, Size: size}, nil
	}

	duration, err := p.tc.ProbeDuration(ctx, video)
	if err != nil {
		return artifact.Entry{}, p.fail(op, err)
	}

	videoKbps, audioKbps := TargetBitrates(targetMB, duration)
	slog.Info("postprocess: compressing",
		"size", humanize.IBytes(uint64(size)),
		"target_mb", targetMB,
		"duration", duration,
		"video_kbps", videoKbps,
		"audio_kbps", audioKbps,
	)

	out := p.ws.Path(name, "mp4")
	return p.transcode(ctx, op, ffmpeg.TargetBitrateCommand(video, out, videoKbps, audioKbps), p.cfg.LongTimeout)
}

// TargetBitrates splits floor(targetMB × 8192 / duration × 0.9) kbit/s between video and audio.
func TargetBitrates(targetMB, durationSeconds float64) (videoKbps, audioKbps int) {
	total := int(math.Floor(targetMB * 8192 / durationSeconds * bitrateSafetyFactor))

	audioKbps = 128
	if total < 512 {
		audioKbps = 64
	}
	if total < 160 {
		audioKbps = 32
	}
	videoKbps = total - audioKbps
	if videoKbps < 32 {
		videoKbps = 32
	}
	return videoKbps, audioKbps
}

// Trim stream-copies video between start and end seconds.
func (p *Processor) Trim(ctx context.Context, video string, start, end float64) (artifact.Entry, error) {
	const op = "postprocess.trim"
	if start < 0 {
		return artifact.Entry{}, mediaerr.Invalid(op, "start (%g) must not be negative", start)
	}
	if end <= start {
		return artifact.Entry{}, mediaerr.Invalid(op, "end (%g) must be greater than start (%g)", end, start)
	}

	out := p.ws.Path(p.ws.NewName(artifact.KindTrimmed), extOf(video))
	cmd := ffmpeg.ClipCommand(video, out, seconds(start), seconds(end))
	return p.transcode(ctx, op, cmd, p.cfg.ShortTimeout)
}

// ChangeSpeed re-encodes video played back at factor × speed.
func (p *Processor) ChangeSpeed(ctx context.Context, video string, factor float64) (artifact.Entry, error) {
	const op = "postprocess.speed"
	if factor < MinSpeed || factor > MaxSpeed || math.IsNaN(factor) {
		return artifact.Entry{}, mediaerr.Invalid(op, "speed factor must be between %g and %g, got %g", MinSpeed, MaxSpeed, factor)
	}

	out := p.ws.Path(p.ws.NewName(artifact.KindSpeed), "mp4")
	return p.transcode(ctx, op, ffmpeg.SpeedCommand(video, out, factor), p.cfg.LongTimeout)
}

// Convert re-encodes or remuxes video into format (mp4, avi, mkv, webm).
func (p *Processor) Convert(ctx context.Context, video, format string) (artifact.Entry, error) {
	const op = "postprocess.convert"
	format = strings.ToLower(strings.TrimSpace(format))

	if _, ok := ffmpeg.PresetForFormat(format); !ok {
		return artifact.Entry{}, &mediaerr.Error{
			Kind: mediaerr.KindUnsupportedTarget,
			Op:   op,
			Err:  fmt.Errorf("unknown format %q, supported formats: %s", format, strings.Join(ffmpeg.ConvertFormats, ", ")),
		}
	}

	out := p.ws.Path(p.ws.NewName(artifact.KindConverted), format)
	cmd, _ := ffmpeg.ConvertCommand(video, out, format)
	return p.transcode(ctx, op, cmd, p.cfg.LongTimeout)
}

// ExtractSubtitles downloads subtitles for url as srt. No subtitles is an empty result, not an error.
func (p *Processor) ExtractSubtitles(ctx context.Context, url string) ([]artifact.Entry, error) {
	const op = "postprocess.subtitles"
	name := p.ws.NewName(artifact.KindSubtitle)

	if err := p.side.WriteSubtitles(ctx, url, p.ws.Template(name), p.cfg.SubtitleLangs); err != nil {
		p.ws.RemoveName(name)
		return nil, p.fail(op, err)
	}

	entries, err := p.ws.Collect(name)
	if err != nil {
		p.ws.RemoveName(name)
		return nil, mediaerr.E(mediaerr.KindPostProcessFailed, op, err)
	}
	slog.Info("postprocess: subtitles", "url", url, "count", len(entries))
	return entries, nil
}

// ExtractThumbnail downloads the source thumbnail as jpg.
func (p *Processor) ExtractThumbnail(ctx context.Context, url string) (artifact.Entry, error) {
	const op = "postprocess.thumbnail"
	name := p.ws.NewName(artifact.KindThumb)

	if err := p.side.WriteThumbnail(ctx, url, p.ws.Template(name)); err != nil {
		p.ws.RemoveName(name)
		return artifact.Entry{}, p.fail(op, err)
	}

	entries, err := p.ws.Collect(name)
	if err != nil || len(entries) == 0 {
		p.ws.RemoveName(name)
		if err == nil {
			err = errors.New("no thumbnail available")
		}
		return artifact.Entry{}, mediaerr.E(mediaerr.KindPostProcessFailed, op, err)
	}

	best := entries[0]
	for _, e := range entries {
		if strings.EqualFold(filepath.Ext(e.Path), ".jpg") {
			best = e
			break
		}
	}
	for _, e := range entries {
		if e.Path != best.Path {
			_ = artifact.Remove(e.Path)
		}
	}
	return best, nil
}

// transcode runs cmd and returns its output, removing any partial output on failure.
func (p *Processor) transcode(ctx context.Context, op string, cmd *ffmpeg.Command, timeout time.Duration) (artifact.Entry, error) {
	out := cmd.Output()
	start := time.Now()

	if _, err := p.tc.Run(ctx, cmd, timeout); err != nil {
		_ = artifact.Remove(out)
		slog.Warn("postprocess: failed", "op", op, "error", err, "elapsed", time.Since(start))
		return artifact.Entry{}, p.fail(op, err)
	}

	size, err := artifact.Size(out)
	if err != nil {
		_ = artifact.Remove(out)
		return artifact.Entry{}, mediaerr.E(mediaerr.KindPostProcessFailed, op, err)
	}

	slog.Info("postprocess: done", "op", op, "size", humanize.IBytes(uint64(size)), "elapsed", time.Since(start))
	return artifact.Entry{Path: out, Size: size}, nil
}

func (p *Processor) fail(op string, err error) error {
	return mediaerr.E(mediaerr.ClassifyTool(err, mediaerr.KindPostProcessFailed), op, err)
}

func extOf(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "mp4"
	}
	return ext
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
