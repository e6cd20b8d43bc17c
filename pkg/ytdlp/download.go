package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// DownloadRequest describes a single fetch of one media URL.
type DownloadRequest struct {
	URL string

	// Resolution is a human label ("1080p" ... "360p", "Best"); it is mapped
	// through FormatFor.
	Resolution string

	// OutputTemplate is the full output path template handed to yt-dlp. It
	// should contain the job id and yt-dlp's %(ext)s placeholder.
	OutputTemplate string

	// MergeFormat is the container yt-dlp merges separate streams into (mp4).
	MergeFormat string
}

// Download fetches a single video. Every stdout/stderr line is passed to
// onLine so the caller can parse progress and the metadata JSON line.
// Playlist expansion is disabled and transient HTTP errors are retried.
func (c *Client) Download(ctx context.Context, req DownloadRequest, onLine func(line string)) error {
	if strings.TrimSpace(req.URL) == "" {
		return fmt.Errorf("ytdlp: url is required")
	}
	if strings.TrimSpace(req.OutputTemplate) == "" {
		return fmt.Errorf("ytdlp: output template is required")
	}
	merge := req.MergeFormat
	if merge == "" {
		merge = "mp4"
	}

	args := []string{
		"--no-playlist",
		"-f", FormatFor(req.Resolution),
		"--merge-output-format", merge,
		"-o", req.OutputTemplate,
		"--print-json",
		"--progress",
		"--newline",
		"--no-colors",
		"--retries", "10",
		"--fragment-retries", "10",
		req.URL,
	}
	return c.exec(ctx, onLine, args...)
}

// livenessProbe models the few metadata fields the poller cares about.
type livenessProbe struct {
	IsLive bool   `json:"is_live"`
	Title  string `json:"title"`
}

// IsLive checks whether the source at url is currently broadcasting, without
// downloading anything.
func (c *Client) IsLive(ctx context.Context, url string) (bool, error) {
	if strings.TrimSpace(url) == "" {
		return false, fmt.Errorf("ytdlp: url is required")
	}

	var out strings.Builder
	err := c.exec(ctx, func(line string) {
		// The single JSON document is the only stdout line we expect.
		if strings.HasPrefix(line, "{") {
			out.WriteString(line)
		}
	}, "--dump-single-json", "--skip-download", "--no-playlist", url)
	if err != nil {
		return false, err
	}

	var probe livenessProbe
	if err := json.Unmarshal([]byte(out.String()), &probe); err != nil {
		return false, fmt.Errorf("ytdlp: parse liveness json: %w", err)
	}
	return probe.IsLive, nil
}
