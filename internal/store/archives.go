package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"thirdcoast.systems/streamvault/internal/model"
)

const archivedCols = `id, title, source_url, file_name, file_path, file_size_bytes,
	thumbnail, thumbnails, description, uploader, archived_at`

func scanArchivedVideo(row pgx.Row) (*model.ArchivedVideo, error) {
	var v model.ArchivedVideo
	err := row.Scan(
		&v.ID, &v.Title, &v.SourceURL, &v.FileName, &v.FilePath, &v.FileSizeBytes,
		&v.Thumbnail, &v.Thumbnails, &v.Description, &v.Uploader, &v.ArchivedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *Store) GetArchivedVideo(ctx context.Context, id string) (*model.ArchivedVideo, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+archivedCols+` FROM archived_videos WHERE id = $1`, id)
	return scanArchivedVideo(row)
}

func (s *Store) ListArchivedVideos(ctx context.Context) ([]*model.ArchivedVideo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+archivedCols+` FROM archived_videos ORDER BY archived_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []*model.ArchivedVideo
	for rows.Next() {
		v, err := scanArchivedVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func (s *Store) CountArchivedVideos(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM archived_videos`).Scan(&n)
	return n, err
}

func (s *Store) InsertArchivedVideo(ctx context.Context, v *model.ArchivedVideo) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO archived_videos (`+archivedCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		v.ID, v.Title, v.SourceURL, v.FileName, v.FilePath, v.FileSizeBytes,
		v.Thumbnail, v.Thumbnails, v.Description, v.Uploader, v.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert archived video %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) DeleteArchivedVideo(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM archived_videos WHERE id = $1`, id)
	return err
}
