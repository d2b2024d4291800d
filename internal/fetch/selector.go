package fetch

import (
	"fmt"

	"thirdcoast.systems/clipfit/internal/platform"
	"thirdcoast.systems/clipfit/internal/quality"
)

// DefaultUserAgent is a desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

const (
	youtubeReferer    = "Referer:https://www.youtube.com/"
	tiktokLanguage    = "Accept-Language:en-US,en;q=0.9"
	simpleFormat      = "best"
	mergeOutputFormat = "mp4"
)

// per-tier filesize ceiling baked into full-platform selectors, in MB
var sizeCeilingMB = map[int]int{
	1080: 50,
	720:  35,
	480:  25,
	360:  15,
}

// SelectorOptions carries the request-independent fetch settings.
type SelectorOptions struct {
	UserAgent string
	// RateLimit is passed to --limit-rate verbatim ("5M", "500K"). Empty disables the cap.
	RateLimit string
}

// Selector is a yt-dlp format expression plus the flags to run it with.
type Selector struct {
	Format string
	Args   []string
}

// BuildSelector returns the format expression and flags for one attempt at tier on p.
func BuildSelector(p platform.Tag, tier quality.Tier, opts SelectorOptions) Selector {
	return Selector{
		Format: formatExpression(p, tier),
		Args:   auxArgs(p, opts),
	}
}

// SimpleSelector is the last-resort attempt: no structured constraints at all.
func SimpleSelector(p platform.Tag, opts SelectorOptions) Selector {
	return Selector{
		Format: simpleFormat,
		Args:   auxArgs(p, opts),
	}
}

// height resolves tier to the numeric height used in expressions.
func height(tier quality.Tier) int {
	switch {
	case tier == quality.Worst:
		return 360
	case tier.Sentinel():
		return 720
	default:
		return tier.Height()
	}
}

func formatExpression(p platform.Tag, tier quality.Tier) string {
	switch p {
	case platform.TikTok:
		if tier == quality.Best || height(tier) >= 480 {
			return "best[ext=mp4]/best"
		}
		return "worst[ext=mp4]/worst"

	case platform.Instagram:
		switch {
		case tier == quality.Worst || tier == quality.Tier360:
			return "worst/best"
		case tier.Sentinel():
			return "best"
		default:
			return fmt.Sprintf("best[height<=%d]/best", tier.Height())
		}

	case platform.Twitter:
		if tier == quality.Worst || tier == quality.Tier360 {
			return "worst[ext=mp4]/worst"
		}
		return "best[ext=mp4]/best"

	default:
		h := height(tier)
		sm := sizeCeilingMB[h]
		return fmt.Sprintf(
			"bestvideo[height<=%d][filesize<%dM]+bestaudio[ext=m4a]/best[height<=%d][filesize<%dM]/best[height<=%d]",
			h, sm, h, sm, h,
		)
	}
}

func auxArgs(p platform.Tag, opts SelectorOptions) []string {
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	args := []string{
		"--no-playlist",
		"--user-agent", ua,
		"--extractor-retries", "3",
		"--fragment-retries", "3",
		"--retry-sleep", "1",
		"--no-check-certificates",
		"--no-write-subs",
	}
	if opts.RateLimit != "" {
		args = append(args, "--limit-rate", opts.RateLimit)
	}

	switch p {
	case platform.YouTube:
		args = append(args, "--add-header", youtubeReferer, "--merge-output-format", mergeOutputFormat)
	case platform.TikTok:
		args = append(args, "--add-header", tiktokLanguage)
	default:
		args = append(args, "--merge-output-format", mergeOutputFormat)
	}
	return args
}
