package ytdlp

import (
	"context"
	"fmt"
	"strings"
)

// WriteThumbnail asks yt-dlp to download the thumbnail as jpg next to outputTemplate.
// Not all extractors expose thumbnails; callers decide whether that is fatal.
func (c *Client) WriteThumbnail(ctx context.Context, url, outputTemplate string, extraArgs ...string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("ytdlp: url is required")
	}
	if strings.TrimSpace(outputTemplate) == "" {
		return fmt.Errorf("ytdlp: output template is required")
	}

	args := []string{
		"--skip-download",
		"--no-playlist",
		"--write-thumbnail",
		"--convert-thumbnails", "jpg",
		"-o", outputTemplate,
	}
	args = append(args, extraArgs...)
	args = append(args, url)

	_, err := c.exec(ctx, c.downloadTimeout(), args...)
	return err
}

// WriteSubtitles asks yt-dlp to download subtitles and auto-captions for langs, converted to srt.
// Many sources have no captions; that is not an error here.
func (c *Client) WriteSubtitles(ctx context.Context, url, outputTemplate string, langs []string, extraArgs ...string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("ytdlp: url is required")
	}
	if strings.TrimSpace(outputTemplate) == "" {
		return fmt.Errorf("ytdlp: output template is required")
	}
	if len(langs) == 0 {
		langs = []string{"en"}
	}

	args := []string{
		"--skip-download",
		"--no-playlist",
		"--write-subs",
		"--write-auto-subs",
		"--sub-langs", strings.Join(langs, ","),
		"--convert-subs", "srt",
		"-o", outputTemplate,
	}
	args = append(args, extraArgs...)
	args = append(args, url)

	_, err := c.exec(ctx, c.downloadTimeout(), args...)
	return err
}
