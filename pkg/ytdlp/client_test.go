package ytdlp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/clipfit/pkg/runner"
)

type recordingRunner struct {
	calls  []runner.Invocation
	stdout string
	err    error
}

func (r *recordingRunner) Run(ctx context.Context, inv runner.Invocation) (*runner.Result, error) {
	r.calls = append(r.calls, inv)
	if r.err != nil {
		return nil, r.err
	}
	return &runner.Result{Stdout: []byte(r.stdout)}, nil
}

func TestGetInfo_ParsesJSON(t *testing.T) {
	rr := &recordingRunner{stdout: `{"id":"abc","title":"hello","webpage_url":"https://example.com","duration":12.5,
		"uploader":"someone","view_count":42,"formats":[{"format_id":"18","height":360},{"format_id":"22","height":720}]}`}
	c := New(rr)

	info, err := c.GetInfo(context.Background(), "https://example.com/watch?v=abc")
	require.NoError(t, err)
	assert.Equal(t, "hello", info.Title)
	assert.Equal(t, "someone", info.Uploader)
	assert.InDelta(t, 12.5, info.Duration, 0.001)
	assert.Equal(t, int64(42), info.ViewCount)
	require.Len(t, info.Formats, 2)
	assert.Equal(t, 720, info.Formats[1].Height)

	require.Len(t, rr.calls, 1)
	inv := rr.calls[0]
	assert.Equal(t, "yt-dlp", inv.Name)
	assert.Equal(t, defaultInfoTimeout, inv.Timeout)
	assert.Contains(t, inv.Args, "--dump-single-json")
	assert.Contains(t, inv.Args, "--no-playlist")
	assert.Equal(t, "https://example.com/watch?v=abc", inv.Args[len(inv.Args)-1])
}

func TestGetInfo_MalformedJSON(t *testing.T) {
	c := New(&recordingRunner{stdout: "not json"})
	_, err := c.GetInfo(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse json")
}

func TestGetInfo_RequiresURL(t *testing.T) {
	rr := &recordingRunner{}
	_, err := New(rr).GetInfo(context.Background(), "  ")
	require.Error(t, err)
	assert.Empty(t, rr.calls)
}

func TestGetInfo_WrapsExecError(t *testing.T) {
	rr := &recordingRunner{err: &runner.Error{
		Name:     "yt-dlp",
		ExitCode: 1,
		Stderr:   "ERROR: [youtube] abc: Video unavailable",
		Cause:    errors.New("exit status 1"),
	}}
	c := New(rr)

	_, err := c.GetInfo(context.Background(), "https://example.com")
	var ee *ExecError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.ExitCode)
	assert.Equal(t, ReasonUnavailable, ee.Reason)
	assert.Contains(t, ee.Stderr, "Video unavailable")
	assert.Contains(t, ee.Error(), "unavailable")
}

func TestExecError_Timeout(t *testing.T) {
	rr := &recordingRunner{err: &runner.Error{Name: "yt-dlp", TimedOut: true, Stderr: "HTTP Error 403"}}
	err := New(rr).Download(context.Background(), "https://example.com", "/tmp/video_1.%(ext)s", "best")

	var ee *ExecError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ReasonTimeout, ee.Reason)
	assert.ErrorIs(t, err, runner.ErrTimeout)
	assert.Contains(t, ee.Error(), "timed out")
}

func TestExecError_StartFailure(t *testing.T) {
	rr := &recordingRunner{err: errors.New("exec: not found")}
	err := New(rr).Update(context.Background())

	var ee *ExecError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ReasonUnknown, ee.Reason)
	assert.Equal(t, "exec: not found", ee.Cause.Error())
}

func TestVersion_TrimsOutput(t *testing.T) {
	v, err := New(&recordingRunner{stdout: "2025.01.01\n"}).Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025.01.01", v)
}

func TestClient_Update_UsesExec(t *testing.T) {
	rr := &recordingRunner{}
	c := New(rr)
	c.Path = ""

	require.NoError(t, c.Update(context.Background()))
	require.Len(t, rr.calls, 1)
	assert.Equal(t, "yt-dlp", rr.calls[0].Name)
	assert.Equal(t, []string{"-U"}, rr.calls[0].Args)
}

func TestClient_PathOrDefault(t *testing.T) {
	c := &Client{Path: "   "}
	require.Equal(t, "yt-dlp", c.PathOrDefault())

	c.Path = "/usr/local/bin/yt-dlp"
	require.Equal(t, "/usr/local/bin/yt-dlp", c.PathOrDefault())
}

func TestDownload_BuildsArgs(t *testing.T) {
	rr := &recordingRunner{}
	c := New(rr)
	c.ExtraArgs = []string{"--proxy", "socks5://127.0.0.1:1080"}
	c.DownloadTimeout = 42 * time.Second

	err := c.Download(context.Background(), "https://youtu.be/x", "/tmp/video_1.%(ext)s", "best[height<=720]", "--no-playlist")
	require.NoError(t, err)

	require.Len(t, rr.calls, 1)
	inv := rr.calls[0]
	assert.Equal(t, 42*time.Second, inv.Timeout)
	assert.Equal(t, []string{"--proxy", "socks5://127.0.0.1:1080", "-f", "best[height<=720]", "-o", "/tmp/video_1.%(ext)s"}, inv.Args[:6])
	assert.Equal(t, "--no-playlist", inv.Args[len(inv.Args)-2])
	assert.Equal(t, "https://youtu.be/x", inv.Args[len(inv.Args)-1])
}

func TestDownload_EmptyFormatOmitsSelector(t *testing.T) {
	rr := &recordingRunner{}
	require.NoError(t, New(rr).Download(context.Background(), "https://vm.tiktok.com/x", "/tmp/video_2.%(ext)s", ""))
	assert.NotContains(t, rr.calls[0].Args, "-f")
	assert.Equal(t, defaultDownloadTimeout, rr.calls[0].Timeout)
}

func TestWriteSubtitles_Args(t *testing.T) {
	rr := &recordingRunner{}
	err := New(rr).WriteSubtitles(context.Background(), "https://youtu.be/x", "/tmp/subtitle_1.%(ext)s", []string{"ru", "en"})
	require.NoError(t, err)

	joined := strings.Join(rr.calls[0].Args, " ")
	assert.Contains(t, joined, "--skip-download")
	assert.Contains(t, joined, "--sub-langs ru,en")
	assert.Contains(t, joined, "--convert-subs srt")
}

func TestWriteThumbnail_Args(t *testing.T) {
	rr := &recordingRunner{}
	require.NoError(t, New(rr).WriteThumbnail(context.Background(), "https://youtu.be/x", "/tmp/thumb_1.%(ext)s"))

	joined := strings.Join(rr.calls[0].Args, " ")
	assert.Contains(t, joined, "--write-thumbnail")
	assert.Contains(t, joined, "--convert-thumbnails jpg")
}

func TestClassifyStderr(t *testing.T) {
	tests := []struct {
		stderr string
		want   Reason
	}{
		{"", ReasonUnknown},
		{"ERROR: Unsupported URL: https://example.com", ReasonUnsupportedURL},
		{"ERROR: [youtube] x: Requested format is not available", ReasonFormatUnavailable},
		{"ERROR: unable to download video data: HTTP Error 403: Forbidden", ReasonForbidden},
		{"ERROR: [youtube] x: Sign in to confirm you're not a bot", ReasonForbidden},
		{"ERROR: [youtube] x: Video unavailable. This video has been removed", ReasonUnavailable},
		{"ERROR: Unable to download webpage: <urlopen error timed out>", ReasonNetwork},
		{"something else went wrong", ReasonUnknown},
	}
	for _, tt := range tests {
		t.Run(string(tt.want)+"/"+tt.stderr, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStderr(tt.stderr))
		})
	}
}
