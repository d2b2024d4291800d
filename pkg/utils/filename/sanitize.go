// Package filename turns free-form titles into download-safe filenames.
package filename

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const defaultMaxLen = 80

// invalidCharsRe matches characters not safe for filenames across all major OSes.
var invalidCharsRe = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// multiDash collapses runs of dashes/underscores.
var multiDash = regexp.MustCompile(`[-_]{2,}`)

// Sanitize converts title into a filename-safe slug of at most maxLen bytes
// (defaultMaxLen when maxLen <= 0). Letters of any script are kept.
func Sanitize(title string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}

	s := invalidCharsRe.ReplaceAllString(strings.TrimSpace(title), "-")
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return '-'
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			return r
		default:
			return -1
		}
	}, s)
	s = multiDash.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-.")

	if len(s) > maxLen {
		s = s[:maxLen]
		for !utf8.ValidString(s) {
			s = s[:len(s)-1]
		}
		s = strings.TrimRight(s, "-.")
	}
	return s
}

// Attachment returns "<sanitized title>.<ext>", or "<fallback>.<ext>" when the title
// has nothing usable in it.
func Attachment(title, fallback, ext string) string {
	base := Sanitize(title, 0)
	if base == "" {
		base = fallback
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return base
	}
	return base + "." + ext
}
