package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"thirdcoast.systems/clipfit/pkg/runner"
)

const defaultProbeTimeout = 30 * time.Second

// ProbeResult contains the container-level media metadata.
type ProbeResult struct {
	Duration float64 // seconds
}

// ffprobeOutput matches the format section of ffprobe JSON output.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe on a file and returns metadata.
func (e *Executor) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	args := []string{
		"-hide_banner",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	}

	timeout := e.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	res, err := e.procRunner().Run(ctx, runner.Invocation{Name: e.ffprobe(), Args: args, Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", newError(args, err))
	}

	return parseProbeOutput(res.Stdout)
}

func parseProbeOutput(raw []byte) (*ProbeResult, error) {
	var output ffprobeOutput
	if err := json.Unmarshal(raw, &output); err != nil {
		return nil, fmt.Errorf("ffprobe: failed to parse output: %w", err)
	}

	result := &ProbeResult{}
	if output.Format.Duration != "" {
		result.Duration, _ = strconv.ParseFloat(output.Format.Duration, 64)
	}

	return result, nil
}

// ProbeDuration returns just the duration in seconds. A zero or missing duration is an error.
func (e *Executor) ProbeDuration(ctx context.Context, path string) (float64, error) {
	result, err := e.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	if result.Duration <= 0 {
		return 0, fmt.Errorf("ffprobe: no duration for %s", path)
	}
	return result.Duration, nil
}
