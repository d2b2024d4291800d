package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"thirdcoast.systems/clipfit/cmd/server/handlers/delivery"
	"thirdcoast.systems/clipfit/cmd/server/internal/web"
	"thirdcoast.systems/clipfit/internal/artifact"
	"thirdcoast.systems/clipfit/internal/config"
	"thirdcoast.systems/clipfit/internal/fetch"
	"thirdcoast.systems/clipfit/internal/orchestrator"
	"thirdcoast.systems/clipfit/internal/postprocess"
	"thirdcoast.systems/clipfit/internal/probe"
	"thirdcoast.systems/clipfit/pkg/ffmpeg"
	"thirdcoast.systems/clipfit/pkg/runner"
	"thirdcoast.systems/clipfit/pkg/ytdlp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting clipfit server")

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	proc := runner.New()

	yt := ytdlp.New(proc)
	yt.Path = conf.YtdlpPath
	yt.InfoTimeout = conf.ProbeTimeout
	yt.DownloadTimeout = conf.DownloadTimeout

	if conf.YtdlpAutoUpdate {
		if err := yt.Update(ctx); err != nil {
			slog.Warn("yt-dlp update failed, continuing with installed version", "error", err)
		}
	}
	if v, err := yt.Version(ctx); err != nil {
		slog.Warn("yt-dlp not runnable", "path", yt.PathOrDefault(), "error", err)
	} else {
		slog.Info("yt-dlp ready", "version", v)
	}

	ff := ffmpeg.NewExecutor(proc)
	ff.FFmpegPath = conf.FFmpegPath
	ff.FFprobePath = conf.FFprobePath
	ff.ProbeTimeout = conf.ProbeTimeout

	ws, err := artifact.NewWorkspace(conf.TempDir)
	if err != nil {
		slog.Error("failed to create temp dir", "error", err)
		os.Exit(1)
	}
	if err := ws.Clear(); err != nil {
		slog.Error("failed to clear temp dir", "error", err)
		os.Exit(1)
	}

	langs, err := conf.SubtitleLanguages()
	if err != nil {
		slog.Error("invalid subtitle languages", "error", err)
		os.Exit(1)
	}

	prober := probe.New(yt)
	loop := fetch.NewLoop(prober, yt, ws, fetch.Config{
		Selector: fetch.SelectorOptions{
			UserAgent: conf.UserAgent,
			RateLimit: conf.RateLimitArg(),
		},
		MaxDocumentMB:  conf.MaxDocumentMB,
		AttemptSpacing: conf.AttemptSpacing,
	})
	pp := postprocess.New(ws, ff, yt, postprocess.Config{
		AudioKbps:     conf.AudioBitrateKbps,
		SubtitleLangs: langs,
		ShortTimeout:  conf.ShortProcessTimeout,
		LongTimeout:   conf.LongProcessTimeout,
	})
	orch := orchestrator.New(loop, prober, pp, orchestrator.Config{
		FetchBudgetMB:    conf.FetchBudgetMB,
		MaxInlineMB:      conf.MaxInlineMB,
		MaxDocumentMB:    conf.MaxDocumentMB,
		HighCeilingMB:    conf.HighCeilingMB,
		CompressTargetMB: conf.CompressTargetMB,
		MaxConcurrent:    conf.MaxConcurrent,
		Observer: func(ev orchestrator.Event) {
			slog.Debug("request state", "request_id", ev.RequestID, "op", ev.Op, "state", ev.State, "attempt", ev.Attempt, "tier", ev.Tier)
		},
	})

	registry := delivery.NewRegistry(conf.DeliveryTTL)
	go registry.Run(ctx, time.Minute)
	go ws.RunSweeper(ctx, conf.SweepInterval, conf.SweepMaxAge)

	e, err := web.NewWebserver(ctx, orch, registry)
	if err != nil {
		slog.Error("failed to create webserver", "error", err)
		os.Exit(1)
	}

	addr := ":" + strconv.Itoa(conf.WebServerPort)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	slog.Info("Listening", "addr", addr, "temp_dir", ws.Dir())
	if err := e.Start(addr); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// Echo returns an error on Shutdown; treat it as normal if context is done.
		if ctx.Err() != nil {
			return
		}
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
