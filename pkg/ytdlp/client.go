package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"thirdcoast.systems/clipfit/pkg/runner"
)

const (
	defaultInfoTimeout     = 30 * time.Second
	defaultDownloadTimeout = 300 * time.Second
)

type ExecError struct {
	Cmd      string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Reason   Reason
	Cause    error
}

func (e *ExecError) Error() string {
	cmdline := strings.TrimSpace(e.Cmd + " " + strings.Join(e.Args, " "))
	if e.Reason == ReasonTimeout {
		return fmt.Sprintf("ytdlp: command timed out: %s", cmdline)
	}
	if e.ExitCode != 0 {
		return fmt.Sprintf("ytdlp: command failed (exit %d, %s): %s", e.ExitCode, e.Reason, cmdline)
	}
	return fmt.Sprintf("ytdlp: command failed (%s): %s", e.Reason, cmdline)
}

func (e *ExecError) Unwrap() error { return e.Cause }

type Client struct {
	// Path to yt-dlp executable. Defaults to "yt-dlp" (PATH lookup).
	Path string

	// ExtraArgs are always prepended before per-call args.
	ExtraArgs []string

	// InfoTimeout bounds metadata-only calls. Defaults to 30s.
	InfoTimeout time.Duration

	// DownloadTimeout bounds media/subtitle/thumbnail downloads. Defaults to 300s.
	DownloadTimeout time.Duration

	// Runner executes the process. Defaults to runner.New().
	Runner runner.Runner
}

func New(r runner.Runner) *Client {
	if r == nil {
		r = runner.New()
	}
	return &Client{Path: "yt-dlp", Runner: r}
}

// PathOrDefault returns the configured path or "yt-dlp" if unset.
func (c *Client) PathOrDefault() string {
	if strings.TrimSpace(c.Path) == "" {
		return "yt-dlp"
	}
	return c.Path
}

func (c *Client) infoTimeout() time.Duration {
	if c.InfoTimeout > 0 {
		return c.InfoTimeout
	}
	return defaultInfoTimeout
}

func (c *Client) downloadTimeout() time.Duration {
	if c.DownloadTimeout > 0 {
		return c.DownloadTimeout
	}
	return defaultDownloadTimeout
}

func (c *Client) exec(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	r := c.Runner
	if r == nil {
		r = runner.New()
	}

	fullArgs := make([]string, 0, len(c.ExtraArgs)+len(args))
	fullArgs = append(fullArgs, c.ExtraArgs...)
	fullArgs = append(fullArgs, args...)

	name := c.PathOrDefault()
	slog.Debug("ytdlp: executing command", "cmd", name, "args", fullArgs, "timeout", timeout)

	res, err := r.Run(ctx, runner.Invocation{Name: name, Args: fullArgs, Timeout: timeout})
	if err != nil {
		return nil, wrapExecError(name, fullArgs, err)
	}
	return res.Stdout, nil
}

// Version returns `yt-dlp --version`.
func (c *Client) Version(ctx context.Context) (string, error) {
	stdout, err := c.exec(ctx, c.infoTimeout(), "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(stdout)), nil
}

// Update runs `yt-dlp -U` to update to the latest version.
func (c *Client) Update(ctx context.Context, extraArgs ...string) error {
	args := []string{"-U"}
	args = append(args, extraArgs...)
	_, err := c.exec(ctx, 2*time.Minute, args...)
	return err
}

// Format is one entry of the formats list in yt-dlp JSON output.
type Format struct {
	Height int `json:"height"`
}

// Info is a light wrapper over yt-dlp JSON output. It models only common fields.
type Info struct {
	Title       string   `json:"title"`
	Uploader    string   `json:"uploader"`
	Duration    float64  `json:"duration"`
	ViewCount   int64    `json:"view_count"`
	UploadDate  string   `json:"upload_date"`
	Description string   `json:"description"`
	Thumbnail   string   `json:"thumbnail"`
	Formats     []Format `json:"formats"`
}

// GetInfo runs yt-dlp in "metadata only" mode and parses its JSON output.
// It uses: --dump-single-json --skip-download --no-playlist
func (c *Client) GetInfo(ctx context.Context, url string, extraArgs ...string) (*Info, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("ytdlp: url is required")
	}

	args := []string{"--dump-single-json", "--skip-download", "--no-playlist", "--no-warnings"}
	args = append(args, extraArgs...)
	args = append(args, url)

	stdout, err := c.exec(ctx, c.infoTimeout(), args...)
	if err != nil {
		return nil, err
	}

	info := &Info{}
	if err := json.Unmarshal(bytes.TrimSpace(stdout), info); err != nil {
		return nil, fmt.Errorf("ytdlp: parse json: %w", err)
	}

	return info, nil
}

func wrapExecError(cmd string, args []string, cause error) error {
	ee := &ExecError{Cmd: cmd, Args: args, Cause: cause, Reason: ReasonUnknown}

	var re *runner.Error
	if errors.As(cause, &re) {
		ee.ExitCode = re.ExitCode
		ee.Stdout = re.Stdout
		ee.Stderr = re.Stderr
		if re.TimedOut {
			ee.Reason = ReasonTimeout
		} else {
			ee.Reason = ClassifyStderr(re.Stderr)
		}
	}
	return ee
}
