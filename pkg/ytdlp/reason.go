package ytdlp

import "strings"

// Reason is the structured cause of a failed yt-dlp run.
type Reason string

const (
	ReasonUnknown           Reason = "unknown"
	ReasonTimeout           Reason = "timeout"
	ReasonForbidden         Reason = "forbidden"
	ReasonUnavailable       Reason = "unavailable"
	ReasonUnsupportedURL    Reason = "unsupported_url"
	ReasonFormatUnavailable Reason = "format_unavailable"
	ReasonFileTooLarge      Reason = "file_too_large"
	ReasonNetwork           Reason = "network"
)

// ordered; first match wins
var stderrPatterns = []struct {
	reason  Reason
	needles []string
}{
	{ReasonUnsupportedURL, []string{"unsupported url"}},
	{ReasonFormatUnavailable, []string{"requested format is not available", "format not available", "no video formats found"}},
	{ReasonForbidden, []string{"http error 403", "403: forbidden", "sign in to confirm", "login required", "private video", "this video is private"}},
	{ReasonUnavailable, []string{"video unavailable", "http error 404", "has been removed", "this video is not available", "is not available in your country"}},
	{ReasonFileTooLarge, []string{"file is larger than max-filesize", "max-filesize"}},
	{ReasonNetwork, []string{"unable to download webpage", "connection reset", "timed out", "name or service not known", "temporary failure in name resolution"}},
}

// ClassifyStderr maps yt-dlp stderr text to a Reason. This is the only place in the
// module where tool output is inspected by substring.
func ClassifyStderr(stderr string) Reason {
	s := strings.ToLower(stderr)
	if strings.TrimSpace(s) == "" {
		return ReasonUnknown
	}
	for _, p := range stderrPatterns {
		for _, n := range p.needles {
			if strings.Contains(s, n) {
				return p.reason
			}
		}
	}
	return ReasonUnknown
}
