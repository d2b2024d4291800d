// Package probe fetches descriptive metadata for a source URL without downloading media.
package probe

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"thirdcoast.systems/clipfit/pkg/ytdlp"
)

const (
	DefaultTitle    = "Unknown video"
	DefaultUploader = "Unknown uploader"
)

type VideoMetadata struct {
	Title            string  `json:"title"`
	DurationSeconds  float64 `json:"duration_seconds"`
	Uploader         string  `json:"uploader"`
	AvailableHeights []int   `json:"available_heights"`
	RawFormatCount   int     `json:"raw_format_count"`
	ViewCount        int64   `json:"view_count"`
	UploadDate       string  `json:"upload_date"`
	Description      string  `json:"description"`
	ThumbnailURL     string  `json:"thumbnail_url"`

	// Degraded is set when the values are defaults because the probe failed.
	Degraded bool `json:"degraded"`
}

// Defaults returns the record used when probing fails.
func Defaults() VideoMetadata {
	return VideoMetadata{
		Title:            DefaultTitle,
		Uploader:         DefaultUploader,
		AvailableHeights: []int{},
		Degraded:         true,
	}
}

// Duration returns DurationSeconds as a time.Duration.
func (m VideoMetadata) Duration() time.Duration {
	return time.Duration(m.DurationSeconds * float64(time.Second))
}

// InfoSource is the metadata-only side of the yt-dlp client.
type InfoSource interface {
	GetInfo(ctx context.Context, url string, extraArgs ...string) (*ytdlp.Info, error)
}

type Prober struct {
	source InfoSource
}

func New(source InfoSource) *Prober {
	return &Prober{source: source}
}

// Probe never fails: any error is logged and Defaults is returned.
func (p *Prober) Probe(ctx context.Context, url string) VideoMetadata {
	start := time.Now()
	info, err := p.source.GetInfo(ctx, url)
	if err != nil {
		slog.Warn("probe: metadata unavailable, using defaults", "url", url, "error", err, "elapsed", time.Since(start))
		return Defaults()
	}

	md := FromInfo(info)
	slog.Debug("probe: metadata", "url", url, "title", md.Title, "duration", md.DurationSeconds, "formats", md.RawFormatCount)
	return md
}

// FromInfo converts yt-dlp output, filling blanks with defaults.
func FromInfo(info *ytdlp.Info) VideoMetadata {
	md := Defaults()
	md.Degraded = false
	if info == nil {
		return md
	}

	if t := strings.TrimSpace(info.Title); t != "" {
		md.Title = t
	}
	if u := strings.TrimSpace(info.Uploader); u != "" {
		md.Uploader = u
	}
	if info.Duration > 0 {
		md.DurationSeconds = info.Duration
	}
	md.ViewCount = info.ViewCount
	md.UploadDate = info.UploadDate
	md.Description = info.Description
	md.ThumbnailURL = info.Thumbnail
	md.RawFormatCount = len(info.Formats)

	seen := make(map[int]struct{}, len(info.Formats))
	for _, f := range info.Formats {
		if f.Height <= 0 {
			continue
		}
		if _, ok := seen[f.Height]; ok {
			continue
		}
		seen[f.Height] = struct{}{}
		md.AvailableHeights = append(md.AvailableHeights, f.Height)
	}
	sort.Ints(md.AvailableHeights)

	return md
}
