// Package main provides an audio input gap meter: it watches a published
// audio track, measures the gap between the input going mute and coming back,
// and logs periodic diagnostic records of the bound track.
//
// Usage:
//
//	gapmeter [-config path/to/config.json]
//
// If -config is not specified, gapmeter looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-gapmeter/internal/archive"
	"github.com/oszuidwest/zwfm-gapmeter/internal/audio"
	"github.com/oszuidwest/zwfm-gapmeter/internal/config"
	"github.com/oszuidwest/zwfm-gapmeter/internal/diag"
	"github.com/oszuidwest/zwfm-gapmeter/internal/eventlog"
	"github.com/oszuidwest/zwfm-gapmeter/internal/gap"
	"github.com/oszuidwest/zwfm-gapmeter/internal/ingest"
	"github.com/oszuidwest/zwfm-gapmeter/internal/metrics"
	"github.com/oszuidwest/zwfm-gapmeter/internal/notify"
	"github.com/oszuidwest/zwfm-gapmeter/internal/server"
	"github.com/oszuidwest/zwfm-gapmeter/internal/tile"
	"github.com/oszuidwest/zwfm-gapmeter/internal/track"
	"github.com/oszuidwest/zwfm-gapmeter/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()

	logPath := snap.LogPath
	if !snap.HasLogPath() {
		logPath = eventlog.DefaultLogPath(snap.WebPort)
	}
	logger, err := eventlog.NewLogger(logPath)
	if err != nil {
		slog.Error("failed to open event log", "path", logPath, "error", err)
		os.Exit(1)
	}
	slog.Info("writing event log", "path", logPath)

	hub := server.NewHub()
	collector := metrics.New()
	notifier := notify.NewGapNotifier(notify.Config{
		WebhookURL:   snap.Notify.WebhookURL,
		ZabbixServer: snap.Notify.ZabbixServer,
		ZabbixPort:   snap.Notify.ZabbixPort,
		ZabbixHost:   snap.Notify.ZabbixHost,
		ZabbixKey:    snap.Notify.ZabbixKey,
		MinGap:       time.Duration(snap.Notify.MinGapMs) * time.Millisecond,
	})
	if notifier.Enabled() {
		slog.Info("gap notifications enabled", "min_gap_ms", snap.Notify.MinGapMs)
	}

	// Tile changes are forwarded to the server once it exists.
	changed := make(chan struct{}, 1)

	t := tile.New(tile.Options{
		Sink:     diag.MultiSink{diag.SlogSink{}, logger, hub, collector},
		Clock:    gap.SystemClock{},
		Interval: snap.SamplerInterval,
		OnChange: func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		},
		OnTrack: func(ref track.Reference) {
			collector.TrackChanged(ref)
			if err := logger.LogTrack(ref); err != nil {
				slog.Warn("failed to log track change", "error", err)
			}
		},
		OnGap: func(d time.Duration, info track.Info) {
			collector.ObserveGap(d)
			ms := gap.Milliseconds(d)
			slog.Info("gap measured", "gap_ms", ms, "track_id", info.ID, "track_label", info.Label)
			if err := logger.LogGap(ms, info); err != nil {
				slog.Warn("failed to log gap", "error", err)
			}
			notifier.HandleGap(d, info)
		},
	})

	input := ingest.NewHandler(t, ingest.Config{
		ICEServers: snap.ICEServers,
		Silence: audio.SilenceConfig{
			Threshold:  snap.SilenceThreshold,
			DurationMs: snap.SilenceDurationMs,
			RecoveryMs: snap.SilenceRecoveryMs,
		},
		OnRTCP: collector.RTCPPacket,
	})

	srv := NewServer(cfg, t, input, hub, collector.Handler(), logPath)
	srv.version.Start()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
				srv.NotifyChange()
			}
		}
	}()

	archiveDone := make(chan struct{})
	if snap.HasArchive() {
		client := archive.NewS3Client(&snap.S3)
		probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := archive.ProbeBucket(probeCtx, client, snap.S3.Bucket); err != nil {
			slog.Warn("S3 archive bucket not writable", "bucket", snap.S3.Bucket, "error", err)
		}
		cancel()

		uploader := archive.NewUploader(client, snap.S3.Bucket, snap.S3.Prefix, logger)
		go func() {
			defer close(archiveDone)
			uploader.Run(ctx, snap.ArchiveInterval)
		}()
		if snap.ArchiveRetention > 0 {
			go archive.NewPruner(client, snap.S3.Bucket, snap.S3.Prefix, snap.ArchiveRetention).Run(ctx)
		}
		slog.Info("archiving event log", "bucket", snap.S3.Bucket, "interval", snap.ArchiveInterval)
	} else {
		close(archiveDone)
	}

	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	srv.version.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	input.Close()
	t.Close()

	stop()
	<-archiveDone
	notifier.Close()

	if err := logger.Close(); err != nil {
		slog.Error("error closing event log", "error", err)
	}

	slog.Info("shutdown complete")
}
