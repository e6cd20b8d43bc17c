// Package model defines the persisted record types shared by the store,
// the pipelines and the web API.
package model

import "time"

// DownloadJob is the record owned by the download and conversion pipelines
// until it is archived or deleted.
type DownloadJob struct {
	ID                string         `json:"id"`
	URL               string         `json:"url"`
	Title             string         `json:"title"`
	Resolution        string         `json:"resolution"`
	Status            DownloadStatus `json:"status"`
	Progress          float64        `json:"progress"`
	Speed             string         `json:"speed,omitempty"`
	ETA               string         `json:"eta,omitempty"`
	FPS               string         `json:"fps,omitempty"`
	OutputPath        string         `json:"output_path,omitempty"`
	ConvertedFilePath string         `json:"converted_file_path,omitempty"`
	Thumbnail         string         `json:"thumbnail,omitempty"`
	Thumbnails        []string       `json:"thumbnails,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// SetThumbnails replaces the thumbnail list and mirrors the first entry into
// the single-thumbnail field kept for older consumers.
func (j *DownloadJob) SetThumbnails(names []string) {
	j.Thumbnails = names
	if len(names) > 0 {
		j.Thumbnail = names[0]
	}
}

// ConversionJob is created from a DownloadJob and deleted once its result has
// been folded back into the download record or the archive.
type ConversionJob struct {
	ID           string           `json:"id"`
	DownloadID   string           `json:"download_id"`
	SourcePath   string           `json:"source_path"`
	OutputPath   string           `json:"output_path"`
	Title        string           `json:"title"`
	Status       ConversionStatus `json:"status"`
	Progress     float64          `json:"progress"`
	Speed        string           `json:"speed,omitempty"`
	FPS          string           `json:"fps,omitempty"`
	ETA          string           `json:"eta,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// ArchivedVideo is terminal: created once, immutable except for deletion.
type ArchivedVideo struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	SourceURL     string    `json:"source_url"`
	FileName      string    `json:"file_name"`
	FilePath      string    `json:"file_path"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	Thumbnail     string    `json:"thumbnail,omitempty"`
	Thumbnails    []string  `json:"thumbnails,omitempty"`
	Description   string    `json:"description,omitempty"`
	Uploader      string    `json:"uploader,omitempty"`
	ArchivedAt    time.Time `json:"archived_at"`
}

// SetThumbnails mirrors the first entry into the legacy single-thumbnail field.
func (v *ArchivedVideo) SetThumbnails(names []string) {
	v.Thumbnails = names
	if len(names) > 0 {
		v.Thumbnail = names[0]
	}
}

// Subscription is a watched source that is polled for liveness.
type Subscription struct {
	ID              string    `json:"id"`
	URL             string    `json:"url"`
	Name            string    `json:"name"`
	IntervalMinutes int       `json:"interval_minutes"`
	Resolution      string    `json:"resolution"`
	LastChecked     time.Time `json:"last_checked"`
	LastTriggered   time.Time `json:"last_triggered"`
	Enabled         bool      `json:"enabled"`
}

// Due reports whether the subscription should be checked again at now.
func (s *Subscription) Due(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	interval := time.Duration(s.IntervalMinutes) * time.Minute
	return now.Sub(s.LastChecked) >= interval
}
