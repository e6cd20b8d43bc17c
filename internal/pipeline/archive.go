package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"thirdcoast.systems/streamvault/internal/model"
	"thirdcoast.systems/streamvault/internal/notify"
	"thirdcoast.systems/streamvault/internal/queue"
	"thirdcoast.systems/streamvault/internal/store"
	"thirdcoast.systems/streamvault/pkg/utils/filename"
)

// Archiver runs the final pipeline stage: it moves a finished download into
// the archive directory, re-derives thumbnails against the archived path and
// replaces the job record with a permanent ArchivedVideo. Sequential, like
// conversion.
type Archiver struct {
	store  Store
	hub    Publisher
	thumbs *Thumbnailer
	opts   Options
	queue  *queue.Queue[string]

	// now is swapped in tests to force filename collisions.
	now func() time.Time
}

func NewArchiver(st Store, hub Publisher, thumbs *Thumbnailer, opts Options) *Archiver {
	return &Archiver{
		store:  st,
		hub:    hub,
		thumbs: thumbs,
		opts:   opts,
		queue:  queue.New[string](),
		now:    time.Now,
	}
}

// Request marks a finished download for archiving and queues it. The status
// change is persisted and published before the job enters the queue so the
// caller observes Archiving immediately.
func (a *Archiver) Request(ctx context.Context, id string) error {
	job, err := a.store.GetDownload(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Active() {
		return fmt.Errorf("download %s is still active", id)
	}

	job.Status = model.DownloadArchiving
	job.Progress = 0
	job.ErrorMessage = ""
	if err := a.store.UpsertDownload(ctx, job); err != nil {
		return fmt.Errorf("persist download job: %w", err)
	}
	a.hub.Publish(notify.Event{Kind: notify.KindDownload, Payload: job})
	a.queue.Enqueue(id)
	return nil
}

// Resume re-enqueues jobs that were mid-archive at the last shutdown.
func (a *Archiver) Resume(ctx context.Context) error {
	jobs, err := a.store.ListDownloadsByStatus(ctx, model.DownloadArchiving)
	if err != nil {
		return fmt.Errorf("list interrupted archive jobs: %w", err)
	}
	for _, job := range jobs {
		slog.Info("Resuming interrupted archive job", "id", job.ID)
		a.queue.Enqueue(job.ID)
	}
	return nil
}

// Run consumes the queue until ctx is cancelled, one job at a time.
func (a *Archiver) Run(ctx context.Context) {
	for {
		id, err := a.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		a.process(ctx, id)
	}
}

func (a *Archiver) process(ctx context.Context, id string) {
	job, err := a.store.GetDownload(ctx, id)
	if err != nil {
		slog.Warn("Dequeued archive job no longer exists", "id", id, "error", err)
		return
	}

	if err := a.archive(ctx, job); err != nil {
		slog.Error("Archiving failed", "id", job.ID, "error", err)
		job.Status = model.DownloadArchivingFailed
		job.ErrorMessage = err.Error()
		a.persist(ctx, job)
	}
}

func (a *Archiver) archive(ctx context.Context, job *model.DownloadJob) error {
	source := job.OutputPath
	if job.ConvertedFilePath != "" {
		if _, err := os.Stat(job.ConvertedFilePath); err == nil {
			source = job.ConvertedFilePath
		}
	}
	if source == "" {
		return errors.New("no file to archive")
	}
	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("source file missing: %w", err)
	}

	dest := a.destinationFor(job, source)
	if err := moveFile(source, dest); err != nil {
		return fmt.Errorf("move into archive: %w", err)
	}

	job.Progress = 20
	a.persist(ctx, job)

	// Thumbnails are re-derived against the archived copy so they survive
	// the deletion of the working files below. Step progress covers the
	// 20-90% band; the remaining 10% is bookkeeping.
	names := a.thumbs.Generate(ctx, dest, job.ID, func(done, total int) {
		job.Progress = 20 + 70*float64(done)/float64(total)
		a.persist(ctx, job)
	})

	info, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("stat archived file: %w", err)
	}

	video := &model.ArchivedVideo{
		ID:            job.ID,
		Title:         job.Title,
		SourceURL:     job.URL,
		FileName:      filepath.Base(dest),
		FilePath:      dest,
		FileSizeBytes: info.Size(),
		ArchivedAt:    a.now(),
	}
	if len(names) > 0 {
		video.SetThumbnails(names)
	} else {
		video.SetThumbnails(job.Thumbnails)
	}

	if err := a.store.InsertArchivedVideo(ctx, video); err != nil {
		return fmt.Errorf("insert archived video: %w", err)
	}
	a.hub.Publish(notify.Event{Kind: notify.KindVideo, Payload: video})

	// The pre-conversion original has served its purpose.
	if job.OutputPath != "" && job.OutputPath != source {
		if err := os.Remove(job.OutputPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("Removing original download failed", "path", job.OutputPath, "error", err)
		}
	}

	if conv, err := a.store.GetConversionByDownload(ctx, job.ID); err == nil {
		if err := a.store.DeleteConversion(ctx, conv.ID); err != nil {
			slog.Warn("Deleting conversion job failed", "id", conv.ID, "error", err)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		slog.Warn("Looking up conversion job failed", "download_id", job.ID, "error", err)
	}

	if err := a.store.DeleteDownload(ctx, job.ID); err != nil {
		return fmt.Errorf("delete download job: %w", err)
	}
	a.hub.Publish(notify.Event{Kind: notify.KindDownloadRemoved, Payload: job.ID})

	slog.Info("Archived video", "id", video.ID, "file", video.FileName, "bytes", video.FileSizeBytes)
	return nil
}

// destinationFor builds the archive path from the template, resolving name
// collisions with a timestamp suffix.
func (a *Archiver) destinationFor(job *model.DownloadJob, source string) string {
	ext := strings.TrimPrefix(filepath.Ext(source), ".")
	fn := filename.Sanitize(job.Title)
	if fn == "" {
		fn = job.ID
	}

	name := filename.Expand(a.opts.ArchiveTemplate, filename.Vars{
		ID:  job.ID,
		FN:  fn,
		Ext: ext,
	})
	dest := filepath.Join(a.opts.ArchiveDir, name)
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		return dest
	}

	suffix := a.now().Format("20060102_150405")
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(a.opts.ArchiveDir, base+"_"+suffix+filepath.Ext(name))
}

func (a *Archiver) persist(ctx context.Context, job *model.DownloadJob) {
	if err := a.store.UpsertDownload(ctx, job); err != nil {
		slog.Error("Persisting download job failed", "id", job.ID, "error", err)
		return
	}
	a.hub.Publish(notify.Event{Kind: notify.KindDownload, Payload: job})
}

// moveFile renames src to dst, falling back to copy+remove when the archive
// directory sits on a different filesystem.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
