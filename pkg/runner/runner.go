// Package runner executes external command lines with an upper-bound wall-clock timeout.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is matched (via errors.Is) by every *Error produced by a timed out invocation.
var ErrTimeout = errors.New("runner: timeout")

// Invocation describes one external process run.
type Invocation struct {
	Name    string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// CommandLine returns a printable form of the invocation (for logs only).
func (inv Invocation) CommandLine() string {
	return strings.TrimSpace(inv.Name + " " + strings.Join(inv.Args, " "))
}

// Result holds the captured output of a successful run.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	PID      int
	Duration time.Duration
}

// Runner runs a single invocation to completion.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*Result, error)
}

// Error is returned for a run that did not exit cleanly.
type Error struct {
	Name     string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Cause    error
}

func (e *Error) Error() string {
	cmdline := strings.TrimSpace(e.Name + " " + strings.Join(e.Args, " "))
	switch {
	case e.TimedOut:
		return fmt.Sprintf("runner: command timed out: %s", cmdline)
	case e.ExitCode != 0:
		return fmt.Sprintf("runner: command failed (exit %d): %s", e.ExitCode, cmdline)
	default:
		return fmt.Sprintf("runner: command failed: %s", cmdline)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ErrTimeout) match timed out runs.
func (e *Error) Is(target error) bool {
	return target == ErrTimeout && e.TimedOut
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// LogFunc, if set, receives every non-empty stdout/stderr line as it is produced.
	LogFunc func(stream string, line string)

	// KillGrace bounds how long Wait keeps draining pipes after the process was killed.
	// Defaults to 5s.
	KillGrace time.Duration
}

// New returns an ExecRunner that logs tool output at debug level.
func New() *ExecRunner {
	return &ExecRunner{
		LogFunc: func(stream, line string) {
			slog.Debug("runner: output", "stream", stream, "line", line)
		},
	}
}

func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	if strings.TrimSpace(inv.Name) == "" {
		return nil, fmt.Errorf("runner: command name is required")
	}

	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, inv.Name, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.WaitDelay = r.KillGrace
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	var outBuf, errBuf bytes.Buffer
	if r.LogFunc != nil {
		cmd.Stdout = &lineWriter{stream: "stdout", callback: r.LogFunc, buffer: &outBuf}
		cmd.Stderr = &lineWriter{stream: "stderr", callback: r.LogFunc, buffer: &errBuf}
	} else {
		cmd.Stdout = &outBuf
		cmd.Stderr = &errBuf
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &Error{Name: inv.Name, Args: inv.Args, Cause: err}
	}
	pid := cmd.Process.Pid

	err := cmd.Wait()
	elapsed := time.Since(start)
	if err != nil {
		timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		return nil, newError(inv, outBuf.Bytes(), errBuf.Bytes(), err, timedOut)
	}

	return &Result{
		Stdout:   outBuf.Bytes(),
		Stderr:   errBuf.Bytes(),
		PID:      pid,
		Duration: elapsed,
	}, nil
}

func newError(inv Invocation, stdout, stderr []byte, cause error, timedOut bool) *Error {
	exitCode := 0
	var ee *exec.ExitError
	if errors.As(cause, &ee) {
		exitCode = ee.ExitCode()
	}
	return &Error{
		Name:     inv.Name,
		Args:     inv.Args,
		ExitCode: exitCode,
		Stdout:   strings.TrimSpace(string(stdout)),
		Stderr:   strings.TrimSpace(string(stderr)),
		TimedOut: timedOut,
		Cause:    cause,
	}
}

// lineWriter buffers output and calls back once per complete line.
type lineWriter struct {
	stream   string
	callback func(stream string, line string)
	buffer   *bytes.Buffer
	pending  []byte
}

func (w *lineWriter) Write(p []byte) (n int, err error) {
	if w.buffer != nil {
		w.buffer.Write(p)
	}

	w.pending = append(w.pending, p...)

	// yt-dlp rewrites its progress line with \r, so both \r and \n end a line.
	for {
		idx := bytes.IndexAny(w.pending, "\r\n")
		if idx < 0 {
			break
		}

		line := string(w.pending[:idx])

		consume := 1
		if w.pending[idx] == '\r' && idx+1 < len(w.pending) && w.pending[idx+1] == '\n' {
			consume = 2
		}
		w.pending = w.pending[idx+consume:]

		if w.callback != nil {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" {
				w.callback(w.stream, trimmed)
			}
		}
	}

	return len(p), nil
}

// Func adapts a plain function to the Runner interface.
type Func func(ctx context.Context, inv Invocation) (*Result, error)

// Run implements Runner.
func (f Func) Run(ctx context.Context, inv Invocation) (*Result, error) { return f(ctx, inv) }
