package model

// DownloadStatus tracks a download job through its full lifecycle, including
// the conversion and archive phases that operate on the same record.
type DownloadStatus string

const (
	DownloadStarting            DownloadStatus = "starting"
	DownloadDownloading         DownloadStatus = "downloading"
	DownloadCompleted           DownloadStatus = "completed"
	DownloadStopped             DownloadStatus = "stopped"
	DownloadFailed              DownloadStatus = "failed"
	DownloadConverting          DownloadStatus = "converting"
	DownloadConversionCompleted DownloadStatus = "conversion_completed"
	DownloadConversionFailed    DownloadStatus = "conversion_failed"
	DownloadArchiving           DownloadStatus = "archiving"
	DownloadArchivingFailed     DownloadStatus = "archiving_failed"
)

// Active reports whether a pipeline is currently working on the job.
func (s DownloadStatus) Active() bool {
	switch s {
	case DownloadStarting, DownloadDownloading, DownloadConverting, DownloadArchiving:
		return true
	}
	return false
}

// Terminal reports whether no further pipeline-internal transition occurs.
func (s DownloadStatus) Terminal() bool {
	return !s.Active()
}

type ConversionStatus string

const (
	ConversionQueued     ConversionStatus = "queued"
	ConversionConverting ConversionStatus = "converting"
	ConversionCompleted  ConversionStatus = "completed"
	ConversionFailed     ConversionStatus = "failed"
)

func (s ConversionStatus) Terminal() bool {
	return s == ConversionCompleted || s == ConversionFailed
}
