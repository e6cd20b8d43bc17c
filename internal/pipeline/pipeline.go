// Package pipeline implements the three chained background stages that take a
// job from URL to archived file: download (parallel), conversion (sequential)
// and archive (sequential), plus the subscription poller that feeds them.
package pipeline

import (
	"context"
	"time"

	"thirdcoast.systems/streamvault/internal/model"
	"thirdcoast.systems/streamvault/internal/notify"
	"thirdcoast.systems/streamvault/pkg/ytdlp"
)

// Store is the persistence surface the pipelines depend on, satisfied by
// *store.Store and by in-memory fakes in tests.
type Store interface {
	GetDownload(ctx context.Context, id string) (*model.DownloadJob, error)
	ListDownloadsByStatus(ctx context.Context, statuses ...model.DownloadStatus) ([]*model.DownloadJob, error)
	UpsertDownload(ctx context.Context, job *model.DownloadJob) error
	DeleteDownload(ctx context.Context, id string) error

	GetConversion(ctx context.Context, id string) (*model.ConversionJob, error)
	GetConversionByDownload(ctx context.Context, downloadID string) (*model.ConversionJob, error)
	ListConversionsByStatus(ctx context.Context, statuses ...model.ConversionStatus) ([]*model.ConversionJob, error)
	UpsertConversion(ctx context.Context, job *model.ConversionJob) error
	DeleteConversion(ctx context.Context, id string) error

	InsertArchivedVideo(ctx context.Context, v *model.ArchivedVideo) error

	ListSubscriptions(ctx context.Context) ([]*model.Subscription, error)
	UpsertSubscription(ctx context.Context, sub *model.Subscription) error
}

// Fetcher downloads remote streams; satisfied by *ytdlp.Client.
type Fetcher interface {
	Download(ctx context.Context, req ytdlp.DownloadRequest, onLine func(line string)) error
	IsLive(ctx context.Context, url string) (bool, error)
}

// Transcoder re-encodes and probes media; satisfied by *ffmpeg.Client.
type Transcoder interface {
	Transcode(ctx context.Context, input, output string, onLine func(line string)) error
	ExtractFrame(ctx context.Context, input, output string, offset time.Duration) error
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Publisher fans out persisted record changes; satisfied by *notify.Hub.
type Publisher interface {
	Publish(ev notify.Event)
}

// Options carries the filesystem layout and naming shared by the stages.
// Templates recognize {id}, {fn}, {ext} and {index} placeholders.
type Options struct {
	DownloadsDir  string
	ConvertedDir  string
	ArchiveDir    string
	ThumbnailsDir string

	DownloadTemplate  string // e.g. {id}.{ext}
	ConvertedTemplate string // e.g. {id}_converted.{ext}
	ArchiveTemplate   string // e.g. {fn}.{ext}
	ThumbnailTemplate string // e.g. {id}_thumb_{index}.jpg

	// OutputFormat is the container downloads are merged into and
	// conversions produce, e.g. "mp4".
	OutputFormat string
}
