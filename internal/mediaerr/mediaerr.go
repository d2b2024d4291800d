// Package mediaerr defines the classified failures returned to callers of the fetch and
// post-processing pipeline.
package mediaerr

import (
	"errors"
	"fmt"

	"thirdcoast.systems/clipfit/pkg/runner"
	"thirdcoast.systems/clipfit/pkg/ytdlp"
)

type Kind string

const (
	KindAccessForbidden   Kind = "access_forbidden"
	KindVideoUnavailable  Kind = "video_unavailable"
	KindUnsupportedSource Kind = "unsupported_source"
	KindSizeExceeded      Kind = "size_exceeded"
	KindFormatUnavailable Kind = "format_unavailable"
	KindTimeout           Kind = "timeout"
	KindAllTiersExhausted Kind = "all_tiers_exhausted"
	KindUnsupportedTarget Kind = "unsupported_target"
	KindInvalidParameters Kind = "invalid_parameters"
	KindPostProcessFailed Kind = "postprocess_failed"
	KindInternal          Kind = "internal"
)

// Error is a classified failure. Err keeps the underlying cause (including raw tool
// stderr) for logs; it is never part of UserMessage.
type Error struct {
	Kind     Kind
	Op       string
	Platform string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Platform != "" {
		msg += " (" + e.Platform + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Invalid builds an InvalidParameters error from a formatted message.
func Invalid(op, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidParameters, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindInternal
}

// FromReason maps a yt-dlp failure reason to a Kind. ok is false when the reason carries
// no classification of its own.
func FromReason(r ytdlp.Reason) (Kind, bool) {
	switch r {
	case ytdlp.ReasonForbidden:
		return KindAccessForbidden, true
	case ytdlp.ReasonUnavailable:
		return KindVideoUnavailable, true
	case ytdlp.ReasonUnsupportedURL:
		return KindUnsupportedSource, true
	case ytdlp.ReasonFormatUnavailable:
		return KindFormatUnavailable, true
	case ytdlp.ReasonTimeout:
		return KindTimeout, true
	case ytdlp.ReasonFileTooLarge:
		return KindSizeExceeded, true
	default:
		return "", false
	}
}

// ClassifyTool maps a yt-dlp, ffmpeg or runner failure to a Kind, falling back to fallback.
func ClassifyTool(err error, fallback Kind) Kind {
	var ee *ytdlp.ExecError
	if errors.As(err, &ee) {
		if k, ok := FromReason(ee.Reason); ok {
			return k
		}
	}
	if errors.Is(err, runner.ErrTimeout) {
		return KindTimeout
	}
	return fallback
}

var userMessages = map[Kind]string{
	KindAccessForbidden:   "Access to this video is forbidden. It may be private, age-restricted or require sign-in.",
	KindVideoUnavailable:  "This video is unavailable. It may have been removed or blocked in this region.",
	KindUnsupportedSource: "This link is not supported.",
	KindSizeExceeded:      "The video is too large to deliver even at the lowest quality.",
	KindFormatUnavailable: "No downloadable format is available for this video.",
	KindTimeout:           "The operation took too long and was cancelled. Please try again later.",
	KindAllTiersExhausted: "The video could not be downloaded at any quality.",
	KindUnsupportedTarget: "This target format is not supported.",
	KindInvalidParameters: "The request parameters are invalid.",
	KindPostProcessFailed: "Processing the video failed.",
	KindInternal:          "Something went wrong. Please try again.",
}

// UserMessage returns the short caller-facing text for err. Raw tool output never appears.
// InvalidParameters and UnsupportedTarget include their own message since it is
// built from caller input, not tool output.
func UserMessage(err error) string {
	var me *Error
	if !errors.As(err, &me) {
		return userMessages[KindInternal]
	}

	msg := userMessages[me.Kind]
	if msg == "" {
		msg = userMessages[KindInternal]
	}
	switch me.Kind {
	case KindInvalidParameters, KindUnsupportedTarget:
		if me.Err != nil {
			msg += " " + me.Err.Error()
		}
	case KindAllTiersExhausted, KindSizeExceeded:
		if me.Platform != "" && me.Platform != "other" {
			msg += " Source: " + me.Platform + "."
		}
	}
	return msg
}
