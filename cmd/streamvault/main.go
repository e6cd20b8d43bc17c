package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"thirdcoast.systems/streamvault/internal/application"
	"thirdcoast.systems/streamvault/internal/config"
	"thirdcoast.systems/streamvault/internal/notify"
	"thirdcoast.systems/streamvault/internal/pipeline"
	"thirdcoast.systems/streamvault/internal/queue"
	"thirdcoast.systems/streamvault/internal/store"
	"thirdcoast.systems/streamvault/internal/web"
	"thirdcoast.systems/streamvault/pkg/ffmpeg"
	"thirdcoast.systems/streamvault/pkg/ytdlp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting streamvault")

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if conf.DatabaseRetries <= 0 {
		conf.DatabaseRetries = 10
	}

	pool, err := application.OpenDBPoolWithRetry(ctx, *conf)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	st := store.New(pool)
	if err := st.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	if err := store.ImportLegacyMetadata(ctx, st, conf.LegacyMetadataFile); err != nil {
		slog.Error("failed to import legacy metadata", "error", err)
		os.Exit(1)
	}

	for _, dir := range []string{conf.DownloadsDir, conf.ConvertedDir, conf.ArchiveDir, conf.ThumbnailsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	hub := notify.NewHub()
	defer hub.Subscribe(func(ev notify.Event) {
		slog.Debug("event", "kind", ev.Kind)
	})()

	fetcher := ytdlp.New(conf.YtdlpPath)
	encoder := &ffmpeg.Client{
		FFmpegPath:       conf.FFmpegPath,
		FFprobePath:      conf.FFprobePath,
		VideoCodec:       conf.VideoCodec,
		AudioCodec:       conf.AudioCodec,
		AudioBitrate:     conf.AudioBitrate,
		Preset:           conf.Preset,
		ThumbnailQuality: conf.ThumbnailQuality,
	}

	opts := pipeline.Options{
		DownloadsDir:      conf.DownloadsDir,
		ConvertedDir:      conf.ConvertedDir,
		ArchiveDir:        conf.ArchiveDir,
		ThumbnailsDir:     conf.ThumbnailsDir,
		DownloadTemplate:  conf.DownloadTemplate,
		ConvertedTemplate: conf.ConvertedTemplate,
		ArchiveTemplate:   conf.ArchiveTemplate,
		ThumbnailTemplate: conf.ThumbnailTemplate,
		OutputFormat:      conf.OutputFormat,
	}

	thumbs := pipeline.NewThumbnailer(encoder, conf.ThumbnailsDir, conf.ThumbnailTemplate)
	convertQueue := queue.New[string]()
	downloader := pipeline.NewDownloader(st, fetcher, hub, thumbs, convertQueue, opts)
	converter := pipeline.NewConverter(st, encoder, hub, thumbs, convertQueue)
	archiver := pipeline.NewArchiver(st, hub, thumbs, opts)
	poller := pipeline.NewPoller(st, fetcher, downloader, hub)

	// Interrupted jobs go back on their queues before anything new is taken.
	if err := downloader.Resume(ctx); err != nil {
		slog.Error("failed to resume downloads", "error", err)
		os.Exit(1)
	}
	if err := converter.Resume(ctx); err != nil {
		slog.Error("failed to resume conversions", "error", err)
		os.Exit(1)
	}
	if err := archiver.Resume(ctx); err != nil {
		slog.Error("failed to resume archive jobs", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	for name, run := range map[string]func(context.Context){
		"downloader": downloader.Run,
		"converter":  converter.Run,
		"archiver":   archiver.Run,
		"poller":     poller.Run,
	} {
		name, run := name, run
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("Worker started", "worker", name)
			run(ctx)
			slog.Info("Worker stopped", "worker", name)
		}()
	}

	server := web.NewServer(st, downloader, archiver, hub, web.Config{
		DownloadsDir:        conf.DownloadsDir,
		ConvertedDir:        conf.ConvertedDir,
		ArchiveDir:          conf.ArchiveDir,
		ThumbnailsDir:       conf.ThumbnailsDir,
		DownloadsURLPrefix:  conf.DownloadsURLPrefix,
		ConvertedURLPrefix:  conf.ConvertedURLPrefix,
		ArchiveURLPrefix:    conf.ArchiveURLPrefix,
		ThumbnailsURLPrefix: conf.ThumbnailsURLPrefix,
	})

	addr := ":" + strconv.Itoa(conf.WebServerPort)
	slog.Info("Listening", "addr", addr)
	if err := server.Serve(ctx, addr); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	wg.Wait()
	slog.Info("Shutdown complete")
}
