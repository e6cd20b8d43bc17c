package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"thirdcoast.systems/streamvault/pkg/utils/filename"
)

// thumbnailFractions are the relative positions at which preview stills are
// extracted, spread over the middle of the video to avoid intros and credits.
var thumbnailFractions = []float64{0.10, 0.25, 0.40, 0.55, 0.70, 0.85}

// Thumbnailer extracts a fixed set of preview stills from a video file.
type Thumbnailer struct {
	enc      Transcoder
	dir      string
	template string
}

func NewThumbnailer(enc Transcoder, dir, template string) *Thumbnailer {
	return &Thumbnailer{enc: enc, dir: dir, template: template}
}

// Generate probes the video's duration and extracts one still per fraction.
// It returns the file names (not paths) of the stills that succeeded; a still
// that fails is logged and skipped. A video whose duration cannot be probed
// or is not positive yields no thumbnails; thumbnails are never an error.
// onStep, when non-nil, is called after each attempted still with
// (done, total) so callers can report progress.
func (t *Thumbnailer) Generate(ctx context.Context, videoPath, key string, onStep func(done, total int)) []string {
	duration, err := t.enc.ProbeDuration(ctx, videoPath)
	if err != nil {
		slog.Warn("Duration probe failed, skipping thumbnails", "video", videoPath, "error", err)
		return nil
	}
	if duration <= 0 {
		return nil
	}

	total := len(thumbnailFractions)
	var names []string
	for i, frac := range thumbnailFractions {
		offset := time.Duration(duration * frac * float64(time.Second))
		name := filename.Expand(t.template, filename.Vars{
			ID:    key,
			Index: fmt.Sprintf("%02d", i),
		})

		if err := t.enc.ExtractFrame(ctx, videoPath, filepath.Join(t.dir, name), offset); err != nil {
			slog.Warn("Thumbnail extraction failed", "video", videoPath, "index", i, "error", err)
		} else {
			names = append(names, name)
		}

		if onStep != nil {
			onStep(i+1, total)
		}
	}
	return names
}
