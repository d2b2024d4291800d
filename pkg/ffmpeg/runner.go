package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"thirdcoast.systems/clipfit/pkg/runner"
)

// Executor runs ffmpeg and ffprobe through a runner.Runner.
type Executor struct {
	// FFmpegPath defaults to "ffmpeg" (PATH lookup).
	FFmpegPath string
	// FFprobePath defaults to "ffprobe" (PATH lookup).
	FFprobePath string
	// Runner defaults to runner.New().
	Runner runner.Runner
	// ProbeTimeout bounds ffprobe calls. Defaults to 30s.
	ProbeTimeout time.Duration
}

// NewExecutor returns an Executor using the binaries found on PATH.
func NewExecutor(r runner.Runner) *Executor {
	if r == nil {
		r = runner.New()
	}
	return &Executor{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe", Runner: r}
}

func (e *Executor) ffmpeg() string {
	if strings.TrimSpace(e.FFmpegPath) == "" {
		return "ffmpeg"
	}
	return e.FFmpegPath
}

func (e *Executor) ffprobe() string {
	if strings.TrimSpace(e.FFprobePath) == "" {
		return "ffprobe"
	}
	return e.FFprobePath
}

func (e *Executor) procRunner() runner.Runner {
	if e.Runner == nil {
		return runner.New()
	}
	return e.Runner
}

// Run executes cmd and waits for completion, killing ffmpeg after timeout (0 = no bound).
func (e *Executor) Run(ctx context.Context, cmd *Command, timeout time.Duration) (*runner.Result, error) {
	args := cmd.Build()
	slog.Debug("ffmpeg: executing command", "args", args, "timeout", timeout)

	res, err := e.procRunner().Run(ctx, runner.Invocation{Name: e.ffmpeg(), Args: args, Timeout: timeout})
	if err != nil {
		return nil, newError(args, err)
	}
	return res, nil
}

// Error represents an ffmpeg/ffprobe execution error with context.
type Error struct {
	Args     []string
	Stderr   string
	TimedOut bool
	Err      error
}

func newError(args []string, err error) *Error {
	fe := &Error{Args: args, Err: err}
	var re *runner.Error
	if errors.As(err, &re) {
		fe.Stderr = re.Stderr
		fe.TimedOut = re.TimedOut
	}
	return fe
}

// Error implements error.
func (e *Error) Error() string {
	if e.TimedOut {
		return "ffmpeg: timed out"
	}

	// Only the last few lines of stderr carry the failure.
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	var lastLines string
	if len(lines) > 3 {
		lastLines = strings.Join(lines[len(lines)-3:], "\n")
	} else {
		lastLines = strings.Join(lines, "\n")
	}

	if lastLines != "" {
		return fmt.Sprintf("ffmpeg: %v: %s", e.Err, lastLines)
	}
	return fmt.Sprintf("ffmpeg: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Command returns the command that was executed.
func (e *Error) Command() string {
	return "ffmpeg " + strings.Join(e.Args, " ")
}
