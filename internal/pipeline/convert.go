package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"thirdcoast.systems/streamvault/internal/model"
	"thirdcoast.systems/streamvault/internal/notify"
	"thirdcoast.systems/streamvault/internal/queue"
	"thirdcoast.systems/streamvault/internal/store"
	"thirdcoast.systems/streamvault/pkg/ffmpeg"
	"thirdcoast.systems/streamvault/pkg/utils/format"
)

// Converter runs the second pipeline stage. Transcodes are strictly
// sequential: one encoder process at a time keeps CPU and disk contention
// predictable.
type Converter struct {
	store  Store
	enc    Transcoder
	hub    Publisher
	thumbs *Thumbnailer
	queue  *queue.Queue[string]

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewConverter(st Store, enc Transcoder, hub Publisher, thumbs *Thumbnailer, q *queue.Queue[string]) *Converter {
	return &Converter{
		store:   st,
		enc:     enc,
		hub:     hub,
		thumbs:  thumbs,
		queue:   q,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Stop cancels the running conversion for the given conversion job id.
func (c *Converter) Stop(id string) error {
	c.mu.Lock()
	cancel, ok := c.cancels[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("conversion %s is not running", id)
	}
	cancel()
	return nil
}

// Resume re-enqueues conversions interrupted by a previous shutdown.
func (c *Converter) Resume(ctx context.Context) error {
	jobs, err := c.store.ListConversionsByStatus(ctx, model.ConversionQueued, model.ConversionConverting)
	if err != nil {
		return fmt.Errorf("list interrupted conversions: %w", err)
	}
	for _, job := range jobs {
		slog.Info("Resuming interrupted conversion", "id", job.ID, "download_id", job.DownloadID)
		c.queue.Enqueue(job.ID)
	}
	return nil
}

// Run consumes the queue until ctx is cancelled, processing jobs one at a
// time in arrival order.
func (c *Converter) Run(ctx context.Context) {
	for {
		id, err := c.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		c.process(ctx, id)
	}
}

func (c *Converter) process(ctx context.Context, id string) {
	job, err := c.store.GetConversion(ctx, id)
	if err != nil {
		slog.Warn("Dequeued conversion job no longer exists", "id", id, "error", err)
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancels[id] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.cancels, id)
		c.mu.Unlock()
		cancel()
	}()

	job.Status = model.ConversionConverting
	job.ErrorMessage = ""
	c.persist(ctx, job)

	// Duration is best-effort: without it there is no percentage or ETA,
	// but the conversion itself proceeds normally.
	var total float64
	if dur, err := c.enc.ProbeDuration(jobCtx, job.SourcePath); err != nil {
		slog.Warn("Duration probe failed, progress reporting disabled", "id", job.ID, "error", err)
	} else {
		total = dur
	}

	tracker := newConversionTracker(total)
	err = c.enc.Transcode(jobCtx, job.SourcePath, job.OutputPath, func(line string) {
		if tracker.Apply(ffmpeg.ParseProgressLine(line)) {
			job.Progress = tracker.Progress
			job.Speed = tracker.Speed
			job.FPS = tracker.FPS
			job.ETA = tracker.ETA
			c.persist(ctx, job)
		}
	})

	switch {
	case jobCtx.Err() != nil || cancelledExitCode(ffmpeg.ExitCode(err)):
		slog.Info("Conversion cancelled", "id", job.ID)
		if rmErr := os.Remove(job.OutputPath); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Warn("Removing partial conversion output failed", "path", job.OutputPath, "error", rmErr)
		}
		c.fail(ctx, job, "Conversion cancelled")
		return
	case err != nil:
		slog.Error("Conversion failed", "id", job.ID, "error", err)
		msg := err.Error()
		if code := ffmpeg.ExitCode(err); code > 0 {
			msg = fmt.Sprintf("conversion failed (exit %d): %s", code, err)
		}
		c.fail(ctx, job, msg)
		return
	}

	if _, statErr := os.Stat(job.OutputPath); statErr != nil {
		c.fail(ctx, job, "conversion finished but no output file was produced")
		return
	}

	names := c.thumbs.Generate(ctx, job.OutputPath, job.DownloadID, nil)

	job.Status = model.ConversionCompleted
	job.Progress = 100
	job.Speed, job.FPS, job.ETA = "", "", ""
	c.persist(ctx, job)

	c.foldBack(ctx, job, func(dl *model.DownloadJob) {
		dl.Status = model.DownloadConversionCompleted
		dl.ConvertedFilePath = job.OutputPath
		if len(names) > 0 {
			dl.SetThumbnails(names)
		}
	})
}

// fail marks the conversion failed and mirrors the outcome onto the download.
func (c *Converter) fail(ctx context.Context, job *model.ConversionJob, msg string) {
	job.Status = model.ConversionFailed
	job.ErrorMessage = msg
	job.Speed, job.FPS, job.ETA = "", "", ""
	c.persist(ctx, job)

	c.foldBack(ctx, job, func(dl *model.DownloadJob) {
		dl.Status = model.DownloadConversionFailed
		dl.ErrorMessage = msg
	})
}

// foldBack applies the conversion outcome to the owning download record. A
// download deleted mid-conversion is only worth a warning.
func (c *Converter) foldBack(ctx context.Context, job *model.ConversionJob, apply func(*model.DownloadJob)) {
	dl, err := c.store.GetDownload(ctx, job.DownloadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("Download job missing on conversion fold-back", "download_id", job.DownloadID)
		} else {
			slog.Error("Loading download job for fold-back failed", "download_id", job.DownloadID, "error", err)
		}
		return
	}

	apply(dl)
	if err := c.store.UpsertDownload(ctx, dl); err != nil {
		slog.Error("Persisting download job failed", "id", dl.ID, "error", err)
		return
	}
	c.hub.Publish(notify.Event{Kind: notify.KindDownload, Payload: dl})
}

func (c *Converter) persist(ctx context.Context, job *model.ConversionJob) {
	if err := c.store.UpsertConversion(ctx, job); err != nil {
		slog.Error("Persisting conversion job failed", "id", job.ID, "error", err)
		return
	}
	c.hub.Publish(notify.Event{Kind: notify.KindConversion, Payload: job})
}

// cancelledExitCode covers the codes ffmpeg dies with when killed: 128+signal
// plus the 255 some builds report on interrupt.
func cancelledExitCode(code int) bool {
	return code == 137 || code == 143 || code == 255
}

// conversionTracker folds progress updates into display values. The reported
// percentage never goes backwards and parsed values survive lines on which
// their token is absent or malformed.
type conversionTracker struct {
	totalSeconds float64
	lastSpeed    float64

	Progress float64
	Speed    string
	FPS      string
	ETA      string
}

func newConversionTracker(totalSeconds float64) *conversionTracker {
	return &conversionTracker{totalSeconds: totalSeconds}
}

// Apply folds one parsed update in and reports whether anything changed.
func (t *conversionTracker) Apply(u ffmpeg.Update) bool {
	if u.Empty() {
		return false
	}
	changed := false

	if u.HasSpeed {
		t.lastSpeed = u.Speed
		if s := format.Speed(u.Speed); s != t.Speed {
			t.Speed = s
			changed = true
		}
	}
	if u.HasFPS {
		if f := format.FPS(u.FPS); f != t.FPS {
			t.FPS = f
			changed = true
		}
	}
	if u.HasElapsed && t.totalSeconds > 0 {
		pct := u.ElapsedSeconds / t.totalSeconds * 100
		if pct > 100 {
			pct = 100
		}
		// Both ffmpeg output streams feed the same parser, so elapsed
		// samples can arrive out of order. A sample that does not advance
		// progress is ignored wholesale, otherwise the ETA would jump
		// backwards off a stale timestamp.
		if pct > t.Progress {
			t.Progress = pct
			changed = true
			if t.lastSpeed > 0 {
				remaining := (t.totalSeconds - u.ElapsedSeconds) / t.lastSpeed
				if eta := format.ETA(remaining); eta != t.ETA {
					t.ETA = eta
				}
			}
		}
	}
	return changed
}
