package ffmpeg

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/clipfit/pkg/runner"
)

func TestCommandBuild(t *testing.T) {
	tests := []struct {
		name     string
		cmd      *Command
		wantArgs []string
	}{
		{
			name: "simple copy",
			cmd:  NewCommand("input.mkv", "output.mp4", CopyAll),
			wantArgs: []string{
				"-hide_banner", "-y",
				"-i", "input.mkv",
				"-c", "copy",
				"-movflags", "+faststart",
				"output.mp4",
			},
		},
		{
			name: "clip is a stream copy between offsets",
			cmd:  ClipCommand("video_1.mp4", "trimmed_2.mp4", 10*time.Second, 25*time.Second),
			wantArgs: []string{
				"-hide_banner", "-y",
				"-ss", "10.000",
				"-i", "video_1.mp4",
				"-t", "15.000",
				"-c", "copy",
				"-avoid_negative_ts", "make_zero",
				"-movflags", "+faststart",
				"trimmed_2.mp4",
			},
		},
		{
			name: "mp3 extraction",
			cmd:  AudioExtractCommand("video_1.webm", "audio_2.mp3", 192),
			wantArgs: []string{
				"-hide_banner", "-y",
				"-i", "video_1.webm",
				"-vn",
				"-c:a", "libmp3lame",
				"-b:a", "192k",
				"audio_2.mp3",
			},
		},
		{
			name: "target bitrate",
			cmd:  TargetBitrateCommand("video_1.mp4", "compressed_2.mp4", 872, 128),
			wantArgs: []string{
				"-hide_banner", "-y",
				"-i", "video_1.mp4",
				"-c:v", "libx264",
				"-preset", "fast",
				"-b:v", "872k",
				"-pix_fmt", "yuv420p",
				"-c:a", "aac",
				"-b:a", "128k",
				"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
				"-movflags", "+faststart",
				"compressed_2.mp4",
			},
		},
		{
			name: "speed filters are split by stream",
			cmd:  NewCommand("in.mp4", "out.mkv", Speed(2), VideoCodec("libx264")),
			wantArgs: []string{
				"-hide_banner", "-y",
				"-i", "in.mp4",
				"-c:v", "libx264",
				"-vf", "setpts=0.5*PTS",
				"-af", "atempo=2",
				"out.mkv",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantArgs, tt.cmd.Build())
		})
	}
}

func TestSpeedFilters(t *testing.T) {
	tests := []struct {
		factor    float64
		wantVideo string
		wantAudio string
	}{
		{0.5, "setpts=2*PTS", "atempo=0.5"},
		{1.25, "setpts=0.8*PTS", "atempo=1.25"},
		{2, "setpts=0.5*PTS", "atempo=2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.wantVideo, SetPTSFilter{Factor: tt.factor}.String())
		assert.Equal(t, tt.wantAudio, ATempoFilter{Factor: tt.factor}.String())
	}
}

func TestPresetForFormat(t *testing.T) {
	tests := []struct {
		format    string
		wantCodec []string
	}{
		{"mp4", []string{"-c:v", "libx264"}},
		{"AVI", []string{"-c:v", "mpeg4"}},
		{"mkv", []string{"-map", "0", "-c", "copy"}},
		{" webm ", []string{"-c:v", "libvpx-vp9"}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			cmd, ok := ConvertCommand("in.mp4", "out", tt.format)
			require.True(t, ok)
			args := cmd.Build()
			assert.Equal(t, tt.wantCodec, args[4:4+len(tt.wantCodec)])
		})
	}

	_, ok := ConvertCommand("in.mp4", "out.gif", "gif")
	assert.False(t, ok)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0.000"},
		{1500 * time.Millisecond, "1.500"},
		{time.Hour + 30*time.Minute + 45*time.Second + 500*time.Millisecond, "5445.500"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d))
	}
}

func TestExecutor_RunWrapsRunnerError(t *testing.T) {
	var got runner.Invocation
	e := NewExecutor(runner.Func(func(ctx context.Context, inv runner.Invocation) (*runner.Result, error) {
		got = inv
		return nil, &runner.Error{
			Name:     inv.Name,
			ExitCode: 1,
			Stderr:   "line1\nline2\nline3\nInvalid data found when processing input",
			Cause:    errors.New("exit status 1"),
		}
	}))
	e.FFmpegPath = "/opt/ffmpeg"

	_, err := e.Run(context.Background(), NewCommand("in.mp4", "out.mp4", CopyAll), time.Minute)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.False(t, fe.TimedOut)
	assert.Contains(t, fe.Error(), "Invalid data found")
	assert.NotContains(t, fe.Error(), "line1")
	assert.Equal(t, "/opt/ffmpeg", got.Name)
	assert.Equal(t, time.Minute, got.Timeout)
	assert.Contains(t, fe.Command(), "-c copy")
}

func TestExecutor_RunTimeout(t *testing.T) {
	e := NewExecutor(runner.Func(func(ctx context.Context, inv runner.Invocation) (*runner.Result, error) {
		return nil, &runner.Error{Name: inv.Name, TimedOut: true}
	}))

	_, err := e.Run(context.Background(), NewCommand("in.mp4", "out.mp4"), time.Second)
	require.ErrorIs(t, err, runner.ErrTimeout)
	assert.Equal(t, "ffmpeg: timed out", err.Error())
}

func TestExecutor_ProbeDuration(t *testing.T) {
	e := NewExecutor(runner.Func(func(ctx context.Context, inv runner.Invocation) (*runner.Result, error) {
		assert.Equal(t, "ffprobe", inv.Name)
		assert.Equal(t, "clip.mp4", inv.Args[len(inv.Args)-1])
		return &runner.Result{Stdout: []byte(`{
			"format": {"format_name": "mov,mp4,m4a", "duration": "125.400000", "size": "1048576", "bit_rate": "66893"},
			"streams": [
				{"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720},
				{"codec_type": "audio", "codec_name": "aac"}
			]
		}`)}, nil
	}))

	d, err := e.ProbeDuration(context.Background(), "clip.mp4")
	require.NoError(t, err)
	assert.InDelta(t, 125.4, d, 0.0001)

	res, err := e.Probe(context.Background(), "clip.mp4")
	require.NoError(t, err)
	assert.InDelta(t, 125.4, res.Duration, 0.0001)
}

func TestExecutor_ProbeDurationMissing(t *testing.T) {
	e := NewExecutor(runner.Func(func(ctx context.Context, inv runner.Invocation) (*runner.Result, error) {
		return &runner.Result{Stdout: []byte(`{"format": {}, "streams": []}`)}, nil
	}))

	_, err := e.ProbeDuration(context.Background(), "clip.mp4")
	require.Error(t, err)
}

// =============================================================================
// Integration tests - require ffmpeg to be installed
// =============================================================================

func requireTools(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}
}

// generateTestVideo creates a short test pattern video with a sine tone.
func generateTestVideo(t *testing.T, duration time.Duration) string {
	t.Helper()

	output := filepath.Join(t.TempDir(), "test_input.mp4")
	durStr := formatDuration(duration)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := runner.New().Run(ctx, runner.Invocation{
		Name: "ffmpeg",
		Args: []string{
			"-hide_banner", "-y",
			"-f", "lavfi", "-i", "testsrc2=duration=" + durStr + ":size=320x240:rate=30",
			"-f", "lavfi", "-i", "sine=frequency=440:duration=" + durStr,
			"-c:v", "libx264", "-preset", "ultrafast", "-crf", "28",
			"-c:a", "aac", "-b:a", "64k",
			"-pix_fmt", "yuv420p",
			"-shortest",
			output,
		},
	})
	require.NoError(t, err, "failed to generate test video")
	return output
}

func TestIntegration_ClipAndAudio(t *testing.T) {
	requireTools(t)

	input := generateTestVideo(t, 5*time.Second)
	dir := filepath.Dir(input)
	e := NewExecutor(nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	clip := filepath.Join(dir, "trimmed.mp4")
	_, err := e.Run(ctx, ClipCommand(input, clip, time.Second, 3*time.Second), time.Minute)
	require.NoError(t, err)

	d, err := e.ProbeDuration(ctx, clip)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d, 0.6)

	audio := filepath.Join(dir, "audio.mp3")
	_, err = e.Run(ctx, AudioExtractCommand(input, audio, 128), time.Minute)
	require.NoError(t, err)

	info, err := os.Stat(audio)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestIntegration_Speed(t *testing.T) {
	requireTools(t)

	input := generateTestVideo(t, 4*time.Second)
	output := filepath.Join(filepath.Dir(input), "speed.mp4")
	e := NewExecutor(nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	_, err := e.Run(ctx, SpeedCommand(input, output, 2), time.Minute)
	require.NoError(t, err)

	d, err := e.ProbeDuration(ctx, output)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d, 0.6)
}
