package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"thirdcoast.systems/streamvault/internal/model"
	"thirdcoast.systems/streamvault/internal/notify"
	"thirdcoast.systems/streamvault/internal/queue"
	"thirdcoast.systems/streamvault/internal/store"
	"thirdcoast.systems/streamvault/pkg/utils/filename"
	"thirdcoast.systems/streamvault/pkg/ytdlp"
)

// playableExts are containers browsers play directly; downloads ending in one
// of these skip the conversion stage entirely.
var playableExts = map[string]bool{
	".mp4":  true,
	".webm": true,
	".m4v":  true,
}

// Downloader runs the first pipeline stage. Jobs are consumed from the queue
// in parallel, one goroutine per job, each with its own cancellable context
// so a single download can be stopped without touching the rest.
type Downloader struct {
	store   Store
	fetcher Fetcher
	hub     Publisher
	thumbs  *Thumbnailer
	opts    Options

	queue        *queue.Queue[string]
	convertQueue *queue.Queue[string]

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewDownloader(st Store, fetcher Fetcher, hub Publisher, thumbs *Thumbnailer, convertQueue *queue.Queue[string], opts Options) *Downloader {
	return &Downloader{
		store:        st,
		fetcher:      fetcher,
		hub:          hub,
		thumbs:       thumbs,
		opts:         opts,
		queue:        queue.New[string](),
		convertQueue: convertQueue,
		cancels:      make(map[string]context.CancelFunc),
	}
}

// Start creates a new download job and queues it for processing.
func (d *Downloader) Start(ctx context.Context, url, resolution string) (*model.DownloadJob, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("url is required")
	}
	if strings.TrimSpace(resolution) == "" {
		resolution = ytdlp.ResolutionBest
	}

	job := &model.DownloadJob{
		ID:         uuid.NewString(),
		URL:        url,
		Resolution: resolution,
		Status:     model.DownloadStarting,
		StartedAt:  time.Now(),
	}
	if err := d.store.UpsertDownload(ctx, job); err != nil {
		return nil, fmt.Errorf("persist download job: %w", err)
	}
	d.hub.Publish(notify.Event{Kind: notify.KindDownload, Payload: job})
	d.queue.Enqueue(job.ID)
	return job, nil
}

// Stop cancels the running download for id. The job transitions to Stopped
// once the fetcher process has exited; Stop itself returns immediately.
func (d *Downloader) Stop(id string) error {
	d.mu.Lock()
	cancel, ok := d.cancels[id]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("download %s is not running", id)
	}
	cancel()
	return nil
}

// Resume re-enqueues jobs interrupted by a previous shutdown. Must run before
// Run starts consuming so crashed jobs go ahead of new ones.
func (d *Downloader) Resume(ctx context.Context) error {
	jobs, err := d.store.ListDownloadsByStatus(ctx, model.DownloadStarting, model.DownloadDownloading)
	if err != nil {
		return fmt.Errorf("list interrupted downloads: %w", err)
	}
	for _, job := range jobs {
		slog.Info("Resuming interrupted download", "id", job.ID, "url", job.URL)
		d.queue.Enqueue(job.ID)
	}
	return nil
}

// Run consumes the queue until ctx is cancelled. Each job is processed on its
// own goroutine; Run returns once the queue loop stops, without waiting for
// in-flight jobs (their subprocesses die with ctx).
func (d *Downloader) Run(ctx context.Context) {
	for {
		id, err := d.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		go d.process(ctx, id)
	}
}

func (d *Downloader) process(ctx context.Context, id string) {
	job, err := d.store.GetDownload(ctx, id)
	if err != nil {
		slog.Warn("Dequeued download job no longer exists", "id", id, "error", err)
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancels[id] = cancel
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.cancels, id)
		d.mu.Unlock()
		cancel()
	}()

	job.Status = model.DownloadDownloading
	job.ErrorMessage = ""
	d.persist(ctx, job)

	// yt-dlp substitutes the final container extension itself.
	template := filepath.Join(d.opts.DownloadsDir, filename.Expand(d.opts.DownloadTemplate, filename.Vars{
		ID:  job.ID,
		Ext: "%(ext)s",
	}))

	err = d.fetcher.Download(jobCtx, ytdlp.DownloadRequest{
		URL:            job.URL,
		Resolution:     job.Resolution,
		OutputTemplate: template,
		MergeFormat:    d.opts.OutputFormat,
	}, func(line string) {
		d.handleLine(ctx, job, line)
	})

	output, hasOutput := d.findOutput(job.ID)
	if hasOutput {
		job.OutputPath = output
	}

	switch {
	case jobCtx.Err() != nil || stoppedExitCode(ytdlp.ExitCode(err)):
		slog.Info("Download stopped", "id", job.ID)
		job.Status = model.DownloadStopped
		job.Speed, job.ETA = "", ""
		d.persist(ctx, job)
	case err != nil:
		slog.Error("Download failed", "id", job.ID, "error", err)
		d.fail(ctx, job, err.Error())
	case !hasOutput:
		d.fail(ctx, job, "download finished but no output file was produced")
		return
	default:
		job.Status = model.DownloadCompleted
		job.Progress = 100
		job.Speed, job.ETA = "", ""
		d.persist(ctx, job)
	}

	// A stopped or failed recording that still left a file behind goes
	// through the same conversion chaining as a completed one: stopping the
	// recorder is the normal way a live capture ends.
	if !hasOutput {
		return
	}
	if playableExts[strings.ToLower(filepath.Ext(output))] {
		d.finishPlayable(ctx, job)
		return
	}
	d.enqueueConversion(ctx, job)
}

// handleLine folds one yt-dlp output line into the job record. Every
// recognized progress update is persisted and published; malformed or alien
// lines leave the record untouched.
func (d *Downloader) handleLine(ctx context.Context, job *model.DownloadJob, line string) {
	if title, ok := ytdlp.ParseTitleLine(line); ok {
		job.Title = title
		d.persist(ctx, job)
		return
	}

	p, ok := ytdlp.ParseProgressLine(line)
	if !ok {
		return
	}
	if p.HasPercent {
		job.Progress = p.Percent
	}
	if p.Speed != "" {
		job.Speed = p.Speed
	}
	if p.ETA != "" {
		job.ETA = p.ETA
	}
	d.persist(ctx, job)
}

// finishPlayable skips conversion for containers that are already directly
// playable: thumbnails come straight off the download.
func (d *Downloader) finishPlayable(ctx context.Context, job *model.DownloadJob) {
	names := d.thumbs.Generate(ctx, job.OutputPath, job.ID, nil)
	if len(names) > 0 {
		job.SetThumbnails(names)
	}
	job.ConvertedFilePath = job.OutputPath
	job.Status = model.DownloadConversionCompleted
	d.persist(ctx, job)
}

// enqueueConversion hands the job to the conversion stage, reusing an
// existing conversion record for this download when one is left over.
func (d *Downloader) enqueueConversion(ctx context.Context, job *model.DownloadJob) {
	conv, err := d.store.GetConversionByDownload(ctx, job.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("Looking up conversion job failed", "download_id", job.ID, "error", err)
			d.fail(ctx, job, "failed to queue conversion: "+err.Error())
			return
		}
		conv = &model.ConversionJob{
			ID:         uuid.NewString(),
			DownloadID: job.ID,
			StartedAt:  time.Now(),
		}
	}

	ext := d.opts.OutputFormat
	if ext == "" {
		ext = "mp4"
	}
	conv.SourcePath = job.OutputPath
	conv.OutputPath = filepath.Join(d.opts.ConvertedDir, filename.Expand(d.opts.ConvertedTemplate, filename.Vars{
		ID:  job.ID,
		Ext: ext,
	}))
	conv.Title = job.Title
	conv.Status = model.ConversionQueued
	conv.Progress = 0
	conv.Speed, conv.FPS, conv.ETA, conv.ErrorMessage = "", "", "", ""

	if err := d.store.UpsertConversion(ctx, conv); err != nil {
		slog.Error("Persisting conversion job failed", "download_id", job.ID, "error", err)
		d.fail(ctx, job, "failed to queue conversion: "+err.Error())
		return
	}
	d.hub.Publish(notify.Event{Kind: notify.KindConversion, Payload: conv})

	job.Status = model.DownloadConverting
	d.persist(ctx, job)
	d.convertQueue.Enqueue(conv.ID)
}

// findOutput locates the file the fetcher produced for a job id; the real
// extension is whatever container the source merged into.
func (d *Downloader) findOutput(id string) (string, bool) {
	pattern := filepath.Join(d.opts.DownloadsDir, filename.Expand(d.opts.DownloadTemplate, filename.Vars{
		ID:  id,
		Ext: "*",
	}))
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", false
	}
	for _, m := range matches {
		// yt-dlp leaves .part files behind on interruption.
		if strings.HasSuffix(m, ".part") {
			continue
		}
		if info, err := os.Stat(m); err == nil && !info.IsDir() {
			return m, true
		}
	}
	return "", false
}

func (d *Downloader) fail(ctx context.Context, job *model.DownloadJob, msg string) {
	job.Status = model.DownloadFailed
	job.ErrorMessage = msg
	job.Speed, job.ETA = "", ""
	d.persist(ctx, job)
}

func (d *Downloader) persist(ctx context.Context, job *model.DownloadJob) {
	if err := d.store.UpsertDownload(ctx, job); err != nil {
		slog.Error("Persisting download job failed", "id", job.ID, "error", err)
		return
	}
	d.hub.Publish(notify.Event{Kind: notify.KindDownload, Payload: job})
}

// stoppedExitCode reports whether an exit code means the process was killed
// rather than failed: 128+SIGKILL and 128+SIGTERM.
func stoppedExitCode(code int) bool {
	return code == 137 || code == 143
}
