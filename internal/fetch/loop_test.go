package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/clipfit/internal/artifact"
	"thirdcoast.systems/clipfit/internal/mediaerr"
	"thirdcoast.systems/clipfit/internal/platform"
	"thirdcoast.systems/clipfit/internal/probe"
	"thirdcoast.systems/clipfit/internal/quality"
	"thirdcoast.systems/clipfit/pkg/ytdlp"
)

const mb = 1024 * 1024

type staticProber struct{ md probe.VideoMetadata }

func (s staticProber) Probe(ctx context.Context, url string) probe.VideoMetadata { return s.md }

// outcome is what one fake yt-dlp run leaves behind.
type outcome struct {
	sizeMB float64
	ext    string
	err    error
	// leftovers are extra suffixes (e.g. "f137.mp4", "mp4.part") written next to the output
	leftovers []string
}

type fakeDownloader struct {
	t        *testing.T
	mu       sync.Mutex
	outcomes []outcome
	formats  []string
}

func (f *fakeDownloader) Download(ctx context.Context, url, tmpl, format string, extraArgs ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formats = append(f.formats, format)
	require.NotEmpty(f.t, f.outcomes, "unexpected download call")
	o := f.outcomes[0]
	f.outcomes = f.outcomes[1:]

	for _, l := range o.leftovers {
		sparseFile(f.t, strings.Replace(tmpl, "%(ext)s", l, 1), 1024)
	}
	if o.err != nil {
		return o.err
	}
	if o.ext != "" {
		sparseFile(f.t, strings.Replace(tmpl, "%(ext)s", o.ext, 1), int64(o.sizeMB*mb))
	}
	return nil
}

func sparseFile(t *testing.T, path string, size int64) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
}

func ok(sizeMB float64) outcome { return outcome{sizeMB: sizeMB, ext: "mp4"} }

func toolErr(r ytdlp.Reason) outcome {
	return outcome{err: &ytdlp.ExecError{Cmd: "yt-dlp", ExitCode: 1, Reason: r}}
}

func newTestLoop(t *testing.T, md probe.VideoMetadata, outcomes ...outcome) (*Loop, *fakeDownloader, *artifact.Workspace) {
	t.Helper()
	ws, err := artifact.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	dl := &fakeDownloader{t: t, outcomes: outcomes}
	loop := NewLoop(staticProber{md: md}, dl, ws, Config{MaxDocumentMB: 2000})
	return loop, dl, ws
}

func dirFiles(t *testing.T, ws *artifact.Workspace) []string {
	t.Helper()
	entries, err := os.ReadDir(ws.Dir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFetch_ScenarioA_AcceptsCappedTier(t *testing.T) {
	loop, dl, ws := newTestLoop(t, probe.VideoMetadata{DurationSeconds: 700}, ok(40))

	res, err := loop.Fetch(context.Background(), Request{
		URL:           "https://www.youtube.com/watch?v=abc",
		RequestedTier: quality.Tier1080,
		MaxSizeMB:     45,
	})
	require.NoError(t, err)

	assert.Equal(t, platform.YouTube, res.Platform)
	assert.Equal(t, quality.Tier720, res.TargetTier)
	assert.Equal(t, quality.Tier720, res.Tier)
	assert.Equal(t, quality.Tier1080, res.RequestedTier)
	assert.False(t, res.QualityOptimized())
	assert.False(t, res.DeliverAsDocument)
	assert.Equal(t, 1, res.Attempts)
	assert.InDelta(t, 40, res.SizeMB, 0.01)
	assert.Contains(t, dl.formats[0], "height<=720")
	assert.Equal(t, filepath.Dir(res.Path), ws.Dir())
	assert.Len(t, dirFiles(t, ws), 1)
}

func TestFetch_ScenarioB_FallsBackOnOversize(t *testing.T) {
	loop, dl, ws := newTestLoop(t, probe.VideoMetadata{DurationSeconds: 700}, ok(50), ok(20))

	res, err := loop.Fetch(context.Background(), Request{
		URL:           "https://youtu.be/abc",
		RequestedTier: quality.Tier1080,
		MaxSizeMB:     45,
	})
	require.NoError(t, err)

	assert.Equal(t, quality.Tier480, res.Tier)
	assert.Equal(t, quality.Tier720, res.TargetTier)
	assert.True(t, res.QualityOptimized())
	assert.Equal(t, 2, res.Attempts)
	assert.Contains(t, dl.formats[1], "height<=480")
	assert.Equal(t, []string{filepath.Base(res.Path)}, dirFiles(t, ws))
}

func TestFetch_ScenarioC_SimpleFetchAsDocument(t *testing.T) {
	loop, dl, ws := newTestLoop(t, probe.Defaults(),
		toolErr(ytdlp.ReasonFormatUnavailable),
		toolErr(ytdlp.ReasonUnknown),
		ok(90),
	)

	res, err := loop.Fetch(context.Background(), Request{
		URL:           "https://vm.tiktok.com/ZMabc/",
		RequestedTier: quality.Tier720,
		MaxSizeMB:     45,
	})
	require.NoError(t, err)

	assert.Equal(t, platform.TikTok, res.Platform)
	assert.True(t, res.DeliverAsDocument)
	assert.InDelta(t, 90, res.SizeMB, 0.01)
	assert.LessOrEqual(t, res.SizeMB, 2000.0)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []string{"best[ext=mp4]/best", "worst[ext=mp4]/worst", "best"}, dl.formats)
	assert.Len(t, dirFiles(t, ws), 1)
}

func TestFetch_ScenarioF_UnknownDurationDoesNotCap(t *testing.T) {
	loop, dl, _ := newTestLoop(t, probe.Defaults(), ok(10))

	res, err := loop.Fetch(context.Background(), Request{
		URL:           "https://www.dailymotion.com/video/x1",
		RequestedTier: quality.Tier1080,
		MaxSizeMB:     45,
	})
	require.NoError(t, err)
	assert.Equal(t, quality.Tier1080, res.TargetTier)
	assert.Equal(t, quality.Tier1080, res.Tier)
	assert.Equal(t, probe.DefaultTitle, res.Metadata.Title)
	assert.Contains(t, dl.formats[0], "height<=1080")
}

func TestFetch_ClassifiesLastFailure(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		outcomes []outcome
		want     mediaerr.Kind
	}{
		{
			name:     "forbidden",
			url:      "https://youtu.be/x",
			outcomes: []outcome{toolErr(ytdlp.ReasonUnknown), toolErr(ytdlp.ReasonUnknown), toolErr(ytdlp.ReasonForbidden)},
			want:     mediaerr.KindAccessForbidden,
		},
		{
			name:     "last error wins",
			url:      "https://youtu.be/x",
			outcomes: []outcome{toolErr(ytdlp.ReasonForbidden), toolErr(ytdlp.ReasonUnknown), toolErr(ytdlp.ReasonUnavailable)},
			want:     mediaerr.KindVideoUnavailable,
		},
		{
			name:     "timeout",
			url:      "https://youtu.be/x",
			outcomes: []outcome{toolErr(ytdlp.ReasonTimeout), toolErr(ytdlp.ReasonTimeout), toolErr(ytdlp.ReasonTimeout)},
			want:     mediaerr.KindTimeout,
		},
		{
			name:     "oversize at minimum",
			url:      "https://youtu.be/x",
			outcomes: []outcome{ok(90), ok(80), ok(70)},
			want:     mediaerr.KindSizeExceeded,
		},
		{
			name:     "no output",
			url:      "https://youtu.be/x",
			outcomes: []outcome{{}, {}, {}},
			want:     mediaerr.KindAllTiersExhausted,
		},
		{
			name:     "unsupported",
			url:      "https://example.com/page",
			outcomes: []outcome{toolErr(ytdlp.ReasonNetwork), toolErr(ytdlp.ReasonNetwork), toolErr(ytdlp.ReasonUnsupportedURL)},
			want:     mediaerr.KindUnsupportedSource,
		},
		{
			name:     "simple fetch over document ceiling",
			url:      "https://www.instagram.com/reel/x/",
			outcomes: []outcome{toolErr(ytdlp.ReasonUnknown), toolErr(ytdlp.ReasonUnknown), ok(2500)},
			want:     mediaerr.KindSizeExceeded,
		},
		{
			name:     "twitter has no simple fetch",
			url:      "https://x.com/u/status/1",
			outcomes: []outcome{toolErr(ytdlp.ReasonUnknown), toolErr(ytdlp.ReasonFormatUnavailable)},
			want:     mediaerr.KindFormatUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop, dl, ws := newTestLoop(t, probe.Defaults(), tt.outcomes...)

			_, err := loop.Fetch(context.Background(), Request{URL: tt.url, RequestedTier: quality.Tier720, MaxSizeMB: 45})
			require.Error(t, err)
			assert.Equal(t, tt.want, mediaerr.KindOf(err))

			var me *mediaerr.Error
			require.ErrorAs(t, err, &me)
			assert.Equal(t, string(platform.Classify(tt.url)), me.Platform)
			assert.Equal(t, "fetch", me.Op)

			assert.Empty(t, dl.outcomes, "every scripted attempt should run")
			assert.Empty(t, dirFiles(t, ws))
		})
	}
}

func TestFetch_AtMostOneFile(t *testing.T) {
	// Each scenario leaves junk behind; the loop must always end with <=1 file on
	// success and 0 on failure.
	scenarios := [][]outcome{
		{{sizeMB: 10, ext: "mp4", leftovers: []string{"f137.mp4", "f140.m4a", "mp4.part"}}},
		{{sizeMB: 60, ext: "webm", leftovers: []string{"f251.webm"}}, ok(30)},
		{{err: errors.New("exit 1"), leftovers: []string{"mp4.part", "webm"}}, ok(90), {sizeMB: 5, ext: "mkv", leftovers: []string{"temp"}}},
		{{err: errors.New("exit 1"), leftovers: []string{"mp4.part"}}, ok(90), ok(80)},
	}

	for i, outcomes := range scenarios {
		loop, _, ws := newTestLoop(t, probe.VideoMetadata{DurationSeconds: 700}, outcomes...)
		res, err := loop.Fetch(context.Background(), Request{URL: "https://youtu.be/x", RequestedTier: quality.Tier720, MaxSizeMB: 45})

		files := dirFiles(t, ws)
		if err != nil {
			assert.Empty(t, files, "scenario %d", i)
			continue
		}
		require.Len(t, files, 1, "scenario %d: %v", i, files)
		assert.Equal(t, filepath.Base(res.Path), files[0])
		assert.LessOrEqual(t, res.SizeMB, 45.0)
	}
}

func TestFetch_ReportsAttempts(t *testing.T) {
	loop, _, _ := newTestLoop(t, probe.VideoMetadata{Title: "t", DurationSeconds: 30}, ok(100), ok(100), ok(1))

	var attempts []Attempt
	var probed probe.VideoMetadata
	_, err := loop.Fetch(context.Background(), Request{
		URL:           "https://vk.com/video1",
		RequestedTier: quality.Best,
		MaxSizeMB:     45,
		OnProbed:      func(md probe.VideoMetadata) { probed = md },
		OnAttempt:     func(a Attempt) { attempts = append(attempts, a) },
	})
	require.NoError(t, err)
	assert.Equal(t, "t", probed.Title)
	assert.Equal(t, []Attempt{
		{N: 1, Tier: quality.Tier720},
		{N: 2, Tier: quality.Tier480},
		{N: 3, Tier: quality.Tier360},
	}, attempts)
}

func TestFetch_AttemptSpacing(t *testing.T) {
	ws, err := artifact.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	dl := &fakeDownloader{t: t, outcomes: []outcome{ok(100), ok(100), ok(1)}}
	loop := NewLoop(staticProber{}, dl, ws, Config{MaxDocumentMB: 2000, AttemptSpacing: 50 * time.Millisecond})

	start := time.Now()
	_, err = loop.Fetch(context.Background(), Request{URL: "https://youtu.be/x", RequestedTier: quality.Tier720, MaxSizeMB: 45})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestFetch_ContextCancelled(t *testing.T) {
	ws, err := artifact.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	dl := &fakeDownloader{t: t, outcomes: []outcome{ok(100), ok(100), ok(1)}}
	loop := NewLoop(staticProber{}, dl, ws, Config{AttemptSpacing: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = loop.Fetch(ctx, Request{URL: "https://youtu.be/x", RequestedTier: quality.Tier720, MaxSizeMB: 45})
	require.Error(t, err)
	assert.Equal(t, mediaerr.KindTimeout, mediaerr.KindOf(err))
	assert.Empty(t, dirFiles(t, ws))
}
