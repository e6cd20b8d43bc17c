package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"thirdcoast.systems/streamvault/internal/model"
)

// legacyStore is the slice of Store that the one-time import needs. Kept
// narrow so the import can be tested without a database.
type legacyStore interface {
	CountArchivedVideos(ctx context.Context) (int64, error)
	InsertArchivedVideo(ctx context.Context, v *model.ArchivedVideo) error
}

// legacyVideo matches the flat-file metadata format written before the
// database existed. Field names follow the old file, not our JSON API.
type legacyVideo struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	FileName   string    `json:"filename"`
	FilePath   string    `json:"filepath"`
	Size       int64     `json:"size"`
	Thumbnail  string    `json:"thumbnail"`
	Thumbnails []string  `json:"thumbnails"`
	Uploader   string    `json:"uploader"`
	ArchivedAt time.Time `json:"archived_at"`
}

// ImportLegacyMetadata migrates a pre-database videos.json into the
// archived_videos collection. It runs at most once: if the collection already
// has rows, or the file does not exist, it is a no-op. Entries whose file no
// longer exists on disk are dropped. On success the file is renamed to
// path+".bak" so the import never repeats.
func ImportLegacyMetadata(ctx context.Context, st legacyStore, path string) error {
	if path == "" {
		return nil
	}

	count, err := st.CountArchivedVideos(ctx)
	if err != nil {
		return fmt.Errorf("count archived videos: %w", err)
	}
	if count > 0 {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read legacy metadata %s: %w", path, err)
	}

	var entries []legacyVideo
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse legacy metadata %s: %w", path, err)
	}

	imported, skipped := 0, 0
	for _, e := range entries {
		if _, err := os.Stat(e.FilePath); err != nil {
			skipped++
			continue
		}

		v := &model.ArchivedVideo{
			ID:            e.ID,
			Title:         e.Title,
			SourceURL:     e.URL,
			FileName:      e.FileName,
			FilePath:      e.FilePath,
			FileSizeBytes: e.Size,
			Uploader:      e.Uploader,
			ArchivedAt:    e.ArchivedAt,
		}
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		if v.FileName == "" {
			v.FileName = filepath.Base(e.FilePath)
		}
		if v.ArchivedAt.IsZero() {
			v.ArchivedAt = time.Now()
		}
		if len(e.Thumbnails) > 0 {
			v.SetThumbnails(e.Thumbnails)
		} else if e.Thumbnail != "" {
			v.SetThumbnails([]string{e.Thumbnail})
		}

		if err := st.InsertArchivedVideo(ctx, v); err != nil {
			return fmt.Errorf("import legacy video %s: %w", v.ID, err)
		}
		imported++
	}

	if err := os.Rename(path, path+".bak"); err != nil {
		return fmt.Errorf("rename legacy metadata: %w", err)
	}

	slog.Info("Imported legacy archive metadata", "imported", imported, "skipped", skipped, "file", path)
	return nil
}
