package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"thirdcoast.systems/streamvault/internal/model"
	"thirdcoast.systems/streamvault/internal/queue"
	"thirdcoast.systems/streamvault/pkg/ytdlp"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	root := t.TempDir()
	opts := Options{
		DownloadsDir:      filepath.Join(root, "downloads"),
		ConvertedDir:      filepath.Join(root, "converted"),
		ArchiveDir:        filepath.Join(root, "archive"),
		ThumbnailsDir:     filepath.Join(root, "thumbnails"),
		DownloadTemplate:  "{id}.{ext}",
		ConvertedTemplate: "{id}_converted.{ext}",
		ArchiveTemplate:   "{fn}.{ext}",
		ThumbnailTemplate: "{id}_thumb_{index}.jpg",
		OutputFormat:      "mp4",
	}
	for _, dir := range []string{opts.DownloadsDir, opts.ConvertedDir, opts.ArchiveDir, opts.ThumbnailsDir} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	return opts
}

func newTestDownloader(t *testing.T, fetcher *fakeFetcher, enc *fakeTranscoder) (*Downloader, *memStore, *recordingHub, *queue.Queue[string]) {
	t.Helper()
	opts := testOptions(t)
	st := newMemStore()
	hub := &recordingHub{}
	thumbs := NewThumbnailer(enc, opts.ThumbnailsDir, opts.ThumbnailTemplate)
	convQ := queue.New[string]()
	return NewDownloader(st, fetcher, hub, thumbs, convQ, opts), st, hub, convQ
}

// writeOutput simulates yt-dlp producing its merged output file.
func writeOutput(t *testing.T, template, ext string) string {
	t.Helper()
	path := strings.Replace(template, "%(ext)s", ext, 1)
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
	return path
}

func TestDownloader_PlayableContainerSkipsConversion(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.downloadFn = func(_ context.Context, req ytdlp.DownloadRequest, onLine func(string)) error {
		onLine(`{"title": "My Stream"}`)
		onLine("[download]  50.0% of ~1.2GiB at 5.3MiB/s ETA 01:00")
		onLine("[download] 100% of 1.2GiB at 6.1MiB/s ETA 00:00")
		writeOutput(t, req.OutputTemplate, "mp4")
		return nil
	}
	enc := &fakeTranscoder{duration: 120}
	d, st, _, convQ := newTestDownloader(t, fetcher, enc)

	job, err := d.Start(context.Background(), "https://example.com/live", "720p")
	require.NoError(t, err)
	d.process(context.Background(), job.ID)

	got, err := st.GetDownload(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, model.DownloadConversionCompleted, got.Status)
	require.Equal(t, "My Stream", got.Title)
	require.Equal(t, float64(100), got.Progress)
	require.NotEmpty(t, got.OutputPath)
	require.Equal(t, got.OutputPath, got.ConvertedFilePath)
	require.Len(t, got.Thumbnails, len(thumbnailFractions))
	require.Equal(t, got.Thumbnails[0], got.Thumbnail)
	require.Zero(t, convQ.Len())
}

func TestDownloader_NonPlayableContainerQueuesConversion(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.downloadFn = func(_ context.Context, req ytdlp.DownloadRequest, onLine func(string)) error {
		writeOutput(t, req.OutputTemplate, "mkv")
		return nil
	}
	enc := &fakeTranscoder{duration: 120}
	d, st, _, convQ := newTestDownloader(t, fetcher, enc)

	job, err := d.Start(context.Background(), "https://example.com/live", "1080p")
	require.NoError(t, err)
	d.process(context.Background(), job.ID)

	got, err := st.GetDownload(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, model.DownloadConverting, got.Status)
	require.True(t, strings.HasSuffix(got.OutputPath, ".mkv"))

	require.Equal(t, 1, convQ.Len())
	conv, err := st.GetConversionByDownload(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, model.ConversionQueued, conv.Status)
	require.Equal(t, got.OutputPath, conv.SourcePath)
	require.True(t, strings.HasSuffix(conv.OutputPath, "_converted.mp4"))
}

func TestDownloader_ReusesExistingConversionRecord(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.downloadFn = func(_ context.Context, req ytdlp.DownloadRequest, onLine func(string)) error {
		writeOutput(t, req.OutputTemplate, "mkv")
		return nil
	}
	d, st, _, _ := newTestDownloader(t, fetcher, &fakeTranscoder{})

	job, err := d.Start(context.Background(), "https://example.com/live", "")
	require.NoError(t, err)

	stale := &model.ConversionJob{
		ID:         "conv-old",
		DownloadID: job.ID,
		Status:     model.ConversionFailed,
	}
	require.NoError(t, st.UpsertConversion(context.Background(), stale))

	d.process(context.Background(), job.ID)

	conv, err := st.GetConversionByDownload(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, "conv-old", conv.ID)
	require.Equal(t, model.ConversionQueued, conv.Status)
	require.Empty(t, conv.ErrorMessage)
}

func TestDownloader_KillExitCodeMeansStopped(t *testing.T) {
	for _, code := range []int{137, 143} {
		fetcher := &fakeFetcher{}
		fetcher.downloadFn = func(_ context.Context, _ ytdlp.DownloadRequest, _ func(string)) error {
			return &ytdlp.ExecError{Cmd: "yt-dlp", ExitCode: code, Cause: errors.New("signal: killed")}
		}
		d, st, _, _ := newTestDownloader(t, fetcher, &fakeTranscoder{})

		job, err := d.Start(context.Background(), "https://example.com/live", "480p")
		require.NoError(t, err)
		d.process(context.Background(), job.ID)

		got, err := st.GetDownload(context.Background(), job.ID)
		require.NoError(t, err)
		require.Equal(t, model.DownloadStopped, got.Status, "exit code %d", code)
		require.Empty(t, got.ErrorMessage)
	}
}

func TestDownloader_StoppedWithPlayableFileStillConverts(t *testing.T) {
	// Stopping the recorder is how a live capture normally ends; the file
	// written so far must go through the playable shortcut.
	fetcher := &fakeFetcher{}
	fetcher.downloadFn = func(_ context.Context, req ytdlp.DownloadRequest, _ func(string)) error {
		writeOutput(t, req.OutputTemplate, "mp4")
		return &ytdlp.ExecError{Cmd: "yt-dlp", ExitCode: 137, Cause: errors.New("signal: killed")}
	}
	enc := &fakeTranscoder{duration: 120}
	d, st, _, convQ := newTestDownloader(t, fetcher, enc)

	job, err := d.Start(context.Background(), "https://example.com/live", "720p")
	require.NoError(t, err)
	d.process(context.Background(), job.ID)

	got, err := st.GetDownload(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, model.DownloadConversionCompleted, got.Status)
	require.NotEmpty(t, got.OutputPath)
	require.Equal(t, got.OutputPath, got.ConvertedFilePath)
	require.Len(t, got.Thumbnails, len(thumbnailFractions))
	require.Zero(t, convQ.Len())
}

func TestDownloader_FailedWithFileQueuesConversion(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.downloadFn = func(_ context.Context, req ytdlp.DownloadRequest, _ func(string)) error {
		writeOutput(t, req.OutputTemplate, "mkv")
		return &ytdlp.ExecError{Cmd: "yt-dlp", ExitCode: 1, Stderr: "connection reset", Cause: errors.New("exit status 1")}
	}
	d, st, _, convQ := newTestDownloader(t, fetcher, &fakeTranscoder{})

	job, err := d.Start(context.Background(), "https://example.com/live", "720p")
	require.NoError(t, err)
	d.process(context.Background(), job.ID)

	got, err := st.GetDownload(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, model.DownloadConverting, got.Status)
	require.True(t, strings.HasSuffix(got.OutputPath, ".mkv"))

	require.Equal(t, 1, convQ.Len())
	conv, err := st.GetConversionByDownload(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, model.ConversionQueued, conv.Status)
	require.Equal(t, got.OutputPath, conv.SourcePath)
}

func TestDownloader_StopCancelsRunningJob(t *testing.T) {
	started := make(chan struct{})
	fetcher := &fakeFetcher{}
	fetcher.downloadFn = func(ctx context.Context, _ ytdlp.DownloadRequest, _ func(string)) error {
		close(started)
		<-ctx.Done()
		return &ytdlp.ExecError{Cmd: "yt-dlp", ExitCode: 137, Cause: ctx.Err()}
	}
	d, st, _, _ := newTestDownloader(t, fetcher, &fakeTranscoder{})

	job, err := d.Start(context.Background(), "https://example.com/live", "Best")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		d.process(context.Background(), job.ID)
		close(done)
	}()

	<-started
	require.NoError(t, d.Stop(job.ID))
	<-done

	got, err := st.GetDownload(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, model.DownloadStopped, got.Status)

	// The cancellation handle is gone once the job unwinds.
	require.Error(t, d.Stop(job.ID))
}

func TestDownloader_NonZeroExitMeansFailed(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.downloadFn = func(_ context.Context, _ ytdlp.DownloadRequest, _ func(string)) error {
		return &ytdlp.ExecError{Cmd: "yt-dlp", ExitCode: 1, Stderr: "ERROR: unsupported url", Cause: errors.New("exit status 1")}
	}
	d, st, _, _ := newTestDownloader(t, fetcher, &fakeTranscoder{})

	job, err := d.Start(context.Background(), "https://example.com/nope", "720p")
	require.NoError(t, err)
	d.process(context.Background(), job.ID)

	got, err := st.GetDownload(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, model.DownloadFailed, got.Status)
	require.NotEmpty(t, got.ErrorMessage)
}

func TestDownloader_MissingOutputMeansFailed(t *testing.T) {
	fetcher := &fakeFetcher{} // succeeds without producing a file
	d, st, _, _ := newTestDownloader(t, fetcher, &fakeTranscoder{})

	job, err := d.Start(context.Background(), "https://example.com/live", "720p")
	require.NoError(t, err)
	d.process(context.Background(), job.ID)

	got, err := st.GetDownload(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, model.DownloadFailed, got.Status)
	require.Contains(t, got.ErrorMessage, "no output file")
}

func TestDownloader_ResumeRequeuesInterruptedJobs(t *testing.T) {
	d, st, _, _ := newTestDownloader(t, &fakeFetcher{}, &fakeTranscoder{})

	for i, status := range []model.DownloadStatus{
		model.DownloadStarting, model.DownloadDownloading,
		model.DownloadCompleted, model.DownloadFailed,
	} {
		require.NoError(t, st.UpsertDownload(context.Background(), &model.DownloadJob{
			ID:     string(rune('a' + i)),
			URL:    "https://example.com",
			Status: status,
		}))
	}

	require.NoError(t, d.Resume(context.Background()))
	require.Equal(t, 2, d.queue.Len())
}

func TestDownloader_StartRequiresURL(t *testing.T) {
	d, _, _, _ := newTestDownloader(t, &fakeFetcher{}, &fakeTranscoder{})
	_, err := d.Start(context.Background(), "  ", "720p")
	require.Error(t, err)
}
