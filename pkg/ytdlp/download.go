package ytdlp

import (
	"context"
	"fmt"
	"strings"
)

// Download fetches url into outputTemplate. The template must end in "%(ext)s" so yt-dlp
// resolves the final extension itself; callers locate the produced file by prefix.
//
// An empty format leaves stream selection to yt-dlp.
func (c *Client) Download(ctx context.Context, url, outputTemplate, format string, extraArgs ...string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("ytdlp: url is required")
	}
	if strings.TrimSpace(outputTemplate) == "" {
		return fmt.Errorf("ytdlp: output template is required")
	}

	args := make([]string, 0, len(extraArgs)+8)
	if strings.TrimSpace(format) != "" {
		args = append(args, "-f", format)
	}
	args = append(args,
		"-o", outputTemplate,
		"--newline",
		"--no-colors",
		"--no-part",
	)
	args = append(args, extraArgs...)
	args = append(args, url)

	_, err := c.exec(ctx, c.downloadTimeout(), args...)
	return err
}
